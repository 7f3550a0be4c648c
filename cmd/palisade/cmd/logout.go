package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, _, cleanup, err := newPanelClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := pc.Logout(cmd.Context()); err != nil {
			fmt.Println("Logout call failed; local session state was cleared anyway.")
			return nil
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
