package cli

import (
	"github.com/spf13/cobra"

	"cockpit/internal/output"
)

func NewAppointmentsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "appointments",
		Short: "List appointments and their customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			dir := deps.App.Directory
			appts := dir.Appointments()
			if len(appts) == 0 {
				formatter.Info("No appointments in the directory")
				return nil
			}
			for _, appt := range appts {
				name := appt.CustomerID
				if customer, ok := dir.Customer(appt.CustomerID); ok && customer.Name != "" {
					name = customer.Name
				}
				formatter.Appointment(appt.ID, appt.Title, name, appt.Status)
			}
			return nil
		},
	}
}
