// Operator default settings: endpoint, model, credential.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	setEndpoint string
	setModel    string
	setAPIKey   string
	clearAPIKey bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update operator defaults",
	RunE:  runSettingsGet,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show operator defaults",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update operator defaults",
	Long: `Update operator defaults. A save always submits endpoint, model, and
credential together; --clear-api-key saves an empty credential, which is
valid for local unauthenticated endpoints.`,
	RunE: runSettingsSet,
}

func init() {
	settingsSetCmd.Flags().StringVar(&setEndpoint, "endpoint", "", "default completion endpoint")
	settingsSetCmd.Flags().StringVar(&setModel, "model", "", "default model")
	settingsSetCmd.Flags().StringVar(&setAPIKey, "api-key", "", "API credential")
	settingsSetCmd.Flags().BoolVar(&clearAPIKey, "clear-api-key", false, "remove the stored credential")
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.bootstrap(cmd.Context()); err != nil {
		return err
	}

	draft := a.settings.Draft()
	fmt.Printf("Endpoint: %s\n", draft.Endpoint)
	fmt.Printf("Model:    %s\n", draft.Model)
	switch cred := a.settings.StoredCredential(); {
	case cred.IsRedacted():
		fmt.Println("API key:  on file (not shown)")
	case cred.IsPresent():
		fmt.Println("API key:  configured")
	default:
		fmt.Println("API key:  not configured")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if setAPIKey != "" && clearAPIKey {
		return fmt.Errorf("--api-key and --clear-api-key are mutually exclusive")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	if setEndpoint != "" {
		a.settings.SetEndpoint(setEndpoint)
	}
	if setModel != "" {
		a.settings.SetModel(setModel)
	}
	if setAPIKey != "" {
		a.settings.SetCredential(setAPIKey)
	}
	if clearAPIKey {
		a.settings.SetCredential("")
	}

	if err := a.settings.Save(ctx); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Println("Settings saved.")
	return nil
}
