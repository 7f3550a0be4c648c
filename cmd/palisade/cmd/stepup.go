package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmwhitley/palisade/panel"
)

var stepUpCode string

var stepUpCmd = &cobra.Command{
	Use:   "step-up",
	Short: "Complete a step-up verification challenge",
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, _, cleanup, err := newPanelClient()
		if err != nil {
			return err
		}
		defer cleanup()

		err = pc.VerifyStepUp(cmd.Context(), stepUpCode)
		if errors.Is(err, panel.ErrVerificationFailed) {
			return errors.New("verification rejected: invalid or expired code")
		}
		if err != nil {
			return err
		}
		fmt.Println("Step-up verification complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stepUpCmd)
	stepUpCmd.Flags().StringVar(&stepUpCode, "code", "", "one-time verification code")
	stepUpCmd.MarkFlagRequired("code")
}
