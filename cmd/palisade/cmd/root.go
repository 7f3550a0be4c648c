package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmwhitley/palisade/client"
	"github.com/jmwhitley/palisade/device"
	"github.com/jmwhitley/palisade/panel"
)

var (
	baseURL      string
	deviceDBPath string
	deviceLabel  string
)

var rootCmd = &cobra.Command{
	Use:   "palisade",
	Short: "Palisade is the admin panel's authenticated client",
	Long: `Command-line access to a Palisade admin panel: login, session status,
step-up verification and logout, through the same authenticated client
core the web panel uses.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080", "panel base URL")
	rootCmd.PersistentFlags().StringVar(&deviceDBPath, "device-db", defaultDeviceDBPath(), "path to the device identity database")
	rootCmd.PersistentFlags().StringVar(&deviceLabel, "device-label", "", "label for a newly created device identity (defaults to hostname)")
}

func defaultDeviceDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "palisade-device.db"
	}
	return filepath.Join(dir, "palisade", "device.db")
}

// newPanelClient builds the authenticated client stack shared by the
// subcommands. The returned cleanup closes the device store.
func newPanelClient() (*panel.Client, *client.Client, func(), error) {
	if err := os.MkdirAll(filepath.Dir(deviceDBPath), 0o700); err != nil {
		return nil, nil, nil, fmt.Errorf("creating device db directory: %w", err)
	}
	store, err := device.Open(deviceDBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	id, err := store.Identity(deviceLabel)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	cl, err := client.New(baseURL,
		client.WithDeviceIdentity(id),
		client.WithStepUpHandler(client.StepUpHandlerFunc(printStepUp)))
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return panel.New(cl), cl, func() { store.Close() }, nil
}

func printStepUp(_ context.Context, methods []string) {
	fmt.Fprintf(os.Stderr, "step-up verification required (methods: %s); run 'palisade step-up --code <code>'\n",
		strings.Join(methods, ", "))
}
