package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmwhitley/palisade/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication state",
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, cl, cleanup, err := newPanelClient()
		if err != nil {
			return err
		}
		defer cleanup()

		mgr := session.NewManager(cl)
		if err := mgr.Bootstrap(cmd.Context()); err != nil {
			fmt.Println("No active session.")
			return nil
		}

		snap := mgr.Snapshot()
		if snap.User != nil {
			fmt.Printf("Signed in as %s (%s)\n", snap.User.DisplayName, snap.User.Email)
		}

		user, err := pc.WhoAmI(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Role: %s\n", user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
