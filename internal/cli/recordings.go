package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cockpit/internal/output"
)

func NewListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			artifacts := deps.App.Catalog.Snapshot()
			if len(artifacts) == 0 {
				formatter.Info("No recordings yet")
				return nil
			}
			formatter.ArtifactListHeader(artifacts)
			for _, a := range artifacts {
				formatter.ArtifactListItem(a)
			}
			return nil
		},
	}
}

func NewAssignCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <recording-id> <customer-id>",
		Short: "Change who a recording will be sent to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := deps.App.Deliverer.Assign(args[0], args[1])
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Success(fmt.Sprintf("%s will be sent to %s", artifact.ID, artifact.CustomerID))
			return nil
		},
	}
}

func NewDeliverCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "deliver <recording-id> [customer-id]",
		Short: "Send a recording to its customer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID := ""
			if len(args) == 2 {
				customerID = args[1]
			}
			artifact, err := deps.App.Deliverer.Deliver(cmd.Context(), args[0], customerID)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Delivered(artifact)
			return nil
		},
	}
}

func NewSyncCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload every recording the delivery service does not have yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			ctx, cancel := drainContext(deps)
			defer cancel()

			started := deps.App.Uploader.Scan(ctx)
			if err := deps.App.Uploader.Drain(ctx); err != nil {
				formatter.Warning(fmt.Sprintf("Uploads still running after %s; they will be retried on the next sync", deps.Config.Uploader.DrainTimeout))
				return nil
			}

			if started == 0 {
				formatter.Info("Nothing to upload")
			}
			if pending := deps.App.Catalog.Pending(); len(pending) > 0 {
				formatter.Warning(fmt.Sprintf("%d recordings still waiting for upload", len(pending)))
				for _, a := range pending {
					formatter.ArtifactListItem(a)
				}
				return nil
			}
			formatter.Success("All recordings synced")
			return nil
		},
	}
}

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep uploading and follow deliveries until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps.Sink.Follow(true)
			defer deps.Sink.Follow(false)
			output.NewFormatter(cmd.OutOrStdout()).Info("Watching recordings (Ctrl+C to stop)")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return deps.App.Uploader.Run(gctx) })
			g.Go(func() error { return deps.App.Reconciler.Run(gctx) })
			return g.Wait()
		},
	}
}

func NewFetchCmd(deps *Dependencies) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "fetch <recording-id>",
		Short: "Write a recording's audio to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			download, err := deps.App.Playback.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := outPath
			if path == "" {
				path = download.FileName
			}
			if path == "" {
				path = args[0] + ".wav"
			}
			if err := os.WriteFile(path, download.Data, 0o644); err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			output.NewFormatter(cmd.OutOrStdout()).Fetched(abs, download)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Destination file (defaults to the recording's file name)")
	return cmd
}

func NewRemoteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "remote",
		Short: "List the newest recordings held by the delivery service",
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := deps.App.Client.List(cmd.Context())
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).RemoteListing(listing)
			return nil
		},
	}
}
