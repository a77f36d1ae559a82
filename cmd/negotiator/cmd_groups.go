package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List available negotiation counterparties",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()
		if err := a.bootstrap(ctx); err != nil {
			return err
		}

		groups, err := a.client.Groups(ctx)
		if err != nil {
			return fmt.Errorf("failed to load groups: %w", err)
		}
		if len(groups) == 0 {
			fmt.Println("No groups available.")
			return nil
		}

		fmt.Println(headerStyle.Render("Available groups"))
		for _, g := range groups {
			fmt.Printf("  %-20s %s\n", g.Name, dimStyle.Render(humanSize(g.Size)))
		}
		return nil
	},
}

// humanSize renders a byte count with binary unit prefixes.
func humanSize(bytes int64) string {
	units := []string{"", "K", "M", "G", "T", "P"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%sB", size, units[i])
}
