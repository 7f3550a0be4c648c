package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/jmwhitley/palisade/panel"
)

var (
	loginEmail string
	loginCode  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, _, cleanup, err := newPanelClient()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Fprint(os.Stderr, "Passphrase: ")
		line, err := bufio.NewReader(os.Stdin).ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		// Move the passphrase into locked memory; ReadBytes' slice is
		// wiped by NewBufferFromBytes. The JSON login body needs a string
		// copy eventually, so locked memory bounds the stdin buffer's
		// lifetime rather than the wire encoding's.
		passphrase := memguard.NewBufferFromBytes(line)
		defer passphrase.Destroy()

		outcome, err := pc.Login(cmd.Context(), loginEmail,
			strings.TrimSpace(passphrase.String()), loginCode)
		if errors.Is(err, panel.ErrInvalidCredentials) {
			return errors.New("login rejected: invalid credentials")
		}
		if err != nil {
			return err
		}

		switch o := outcome.(type) {
		case panel.LoginGranted:
			fmt.Printf("Logged in as %s (%s)\n", o.Session.User.DisplayName, o.Session.User.Email)
		case panel.LoginMFARequired:
			return fmt.Errorf("one-time code required (methods: %s); re-run with --code",
				strings.Join(o.Methods, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginCode, "code", "", "one-time code, if MFA is enrolled")
	loginCmd.MarkFlagRequired("email")
}
