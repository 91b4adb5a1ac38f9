package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cockpit/internal/domain"
	"cockpit/internal/output"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var appointmentID string
	var customerID string
	var noSync bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an appointment",
		Long:  "Record from the microphone. Type p, r, s or a followed by Enter to pause, resume, stop or abort.\nCtrl+C stops and saves the take.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			app := deps.App

			recipient := strings.TrimSpace(customerID)
			if recipient == "" {
				recipient, _ = app.Directory.RecipientFor(appointmentID)
			}
			if recipient == "" {
				return fmt.Errorf("%w: no recipient for an unassigned recording, pass --customer", domain.ErrBadRequest)
			}
			if appointmentID != "" {
				if _, ok := app.Directory.Appointment(appointmentID); !ok {
					formatter.Warning(fmt.Sprintf("Appointment %s is not in the directory", appointmentID))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.Recorder.Start(ctx, appointmentID); err != nil {
				return err
			}
			formatter.RecordingStarted(appointmentID)

			commands := readCommands(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return finishRecording(deps, recipient, noSync, formatter)
				case line, ok := <-commands:
					if !ok {
						// Without stdin only a signal ends the take.
						commands = nil
						continue
					}
					switch line {
					case "p", "pause":
						if err := app.Recorder.Pause(); err != nil {
							formatter.Warning(err.Error())
						}
					case "r", "resume":
						if err := app.Recorder.Resume(); err != nil {
							formatter.Warning(err.Error())
						}
					case "s", "stop":
						return finishRecording(deps, recipient, noSync, formatter)
					case "a", "abort":
						if err := app.Recorder.Abort(); err != nil {
							return err
						}
						formatter.Info("Recording discarded")
						return nil
					case "":
					default:
						formatter.Warning(fmt.Sprintf("Unknown command %q", line))
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&appointmentID, "appointment", "a", "", "Appointment to bind the take to (empty records unassigned)")
	cmd.Flags().StringVarP(&customerID, "customer", "c", "", "Recipient customer (defaults to the appointment's customer)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Keep the take local instead of uploading it right away")

	return cmd
}

func finishRecording(deps *Dependencies, recipient string, noSync bool, formatter *output.Formatter) error {
	app := deps.App
	artifact, err := app.Recorder.Stop(context.Background(), recipient)
	if err != nil {
		return err
	}
	formatter.ArtifactSaved(artifact)
	if noSync {
		return nil
	}

	ctx, cancel := drainContext(deps)
	defer cancel()
	app.Uploader.Scan(ctx)
	if err := app.Uploader.Drain(ctx); err != nil {
		formatter.Warning("Upload still running; it will be retried on the next sync")
		return nil
	}

	if current, ok := app.Catalog.Get(artifact.ID); ok {
		formatter.ArtifactChanged(current)
	}
	return nil
}

func drainContext(deps *Dependencies) (context.Context, context.CancelFunc) {
	if timeout := deps.Config.Uploader.DrainTimeout; timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

func readCommands(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()
	return out
}
