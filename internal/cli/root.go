package cli

import (
	"github.com/spf13/cobra"

	"cockpit/internal/bootstrap"
	"cockpit/internal/config"
	"cockpit/internal/version"
)

type Dependencies struct {
	App    *bootstrap.Cockpit
	Config config.Cockpit
	Sink   *EventSink
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cockpit",
		Short:         "Record appointment audio and deliver it to customers",
		Long:          "Captures microphone audio per appointment, keeps every take locally until the delivery service has it, and sends recordings to customers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full("cockpit") + "\n")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewListCmd(deps))
	rootCmd.AddCommand(NewAssignCmd(deps))
	rootCmd.AddCommand(NewDeliverCmd(deps))
	rootCmd.AddCommand(NewSyncCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewFetchCmd(deps))
	rootCmd.AddCommand(NewRemoteCmd(deps))
	rootCmd.AddCommand(NewAppointmentsCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
