package cli

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"cockpit/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			cfg := deps.Config
			ok := true

			if path, err := exec.LookPath(cfg.Audio.RecorderCommand); err != nil {
				f.SetupCheck("ffmpeg", false, fmt.Sprintf("%q not found. Install ffmpeg or set COCKPIT_AUDIO__FFMPEG_COMMAND", cfg.Audio.RecorderCommand))
				ok = false
			} else {
				f.SetupCheck("ffmpeg", true, path)
			}
			f.SetupCheck("Microphone", true, fmt.Sprintf("%s (%s)", cfg.Audio.InputDevice, cfg.Audio.InputFormat))

			artifacts := deps.App.Catalog.Snapshot()
			f.SetupCheck("Local store", true, fmt.Sprintf("%s at %s, %d recordings", cfg.LocalStore.Driver, cfg.LocalStore.Path, len(artifacts)))

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := deps.App.Client.Ping(ctx); err != nil {
				f.SetupCheck("Delivery service", false, fmt.Sprintf("%s unreachable: %v", cfg.Delivery.BaseURL, err))
				ok = false
			} else {
				f.SetupCheck("Delivery service", true, cfg.Delivery.BaseURL)
			}

			source := "built-in demo"
			if cfg.Directory.Path != "" {
				source = cfg.Directory.Path
			}
			f.SetupCheck("Directory", true, fmt.Sprintf("%s, %d appointments", source, len(deps.App.Directory.Appointments())))

			if ok {
				f.Success("All prerequisites met. Ready to record!")
			} else {
				f.Warning("Some prerequisites are missing. Recordings stay local until the delivery service is reachable.")
			}
			return nil
		},
	}
}
