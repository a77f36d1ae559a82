// Authentication commands: status, login, logout.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fish-not-phish/RansomNegotiator/internal/auth"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status and operator profile",
	RunE:  runStatus,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Print the login page URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		fmt.Println("Log in through your browser, then re-run your command:")
		fmt.Println("  " + a.client.LoginURL())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the backend session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()
		if err := a.boot.Run(ctx); err != nil {
			return err
		}
		if err := a.boot.Logout(ctx); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	err = a.boot.Run(cmd.Context())
	if errors.Is(err, auth.ErrNotAuthenticated) {
		// The navigator already printed the login URL.
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("Logged in.")
	if p := a.identity.Profile(); p != nil {
		fmt.Printf("  Operator:  %s", p.Username)
		if p.Email != "" {
			fmt.Printf(" <%s>", p.Email)
		}
		fmt.Println()
		fmt.Printf("  Endpoint:  %s\n", p.BaseURL)
		fmt.Printf("  Model:     %s\n", p.Model)
		if p.HasAPIKey {
			fmt.Println("  API key:   on file")
		} else {
			fmt.Println("  API key:   not configured")
		}
	}
	return nil
}
