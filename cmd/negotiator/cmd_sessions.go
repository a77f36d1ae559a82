// Session catalog commands: list, search, new, show, delete.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fish-not-phish/RansomNegotiator/internal/directory"
	"github.com/fish-not-phish/RansomNegotiator/internal/session"
)

var (
	sessionsOffline bool
	newGroup        string
	newCompany      string
	newRevenue      string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage negotiation sessions",
	RunE:  runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE:  runSessionsList,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search sessions by message content",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsSearch,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new negotiation session",
	RunE:  runSessionsNew,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsOffline, "offline", false, "list from the local catalog mirror without contacting the backend")
	sessionsNewCmd.Flags().StringVar(&newGroup, "group", "", "negotiation group (required)")
	sessionsNewCmd.Flags().StringVar(&newCompany, "company", "", "victim company name hint")
	sessionsNewCmd.Flags().StringVar(&newRevenue, "revenue", "", "victim revenue hint")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsSearchCmd, sessionsNewCmd, sessionsShowCmd, sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if sessionsOffline {
		if a.catalog == nil {
			return fmt.Errorf("no local catalog mirror configured")
		}
		summaries, err := a.catalog.All()
		if err != nil {
			return err
		}
		printCatalog(summaries, false)
		fmt.Println(dimStyle.Render("(offline mirror; may be stale)"))
		return nil
	}

	if err := a.bootstrap(cmd.Context()); err != nil {
		return err
	}
	printCatalog(a.dir.Snapshot(), a.dir.SearchMode())
	return nil
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.dir.Search(ctx, args[0]); err != nil {
		return err
	}
	printCatalog(a.dir.Snapshot(), a.dir.SearchMode())
	return nil
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	err = a.dir.Create(ctx, directory.CreateParams{
		GroupName:   newGroup,
		CompanyName: newCompany,
		Revenue:     newRevenue,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Session %s created.\n\n", a.active.ID())
	for _, m := range a.active.Messages() {
		printMessage(a.active.GroupName(), m)
	}
	fmt.Printf("\nContinue with: negotiator chat %s\n", a.active.ID())
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.dir.Load(ctx, args[0]); err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Negotiation with " + a.active.GroupName()))
	fmt.Println()
	for _, m := range a.active.Messages() {
		printMessage(a.active.GroupName(), m)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.dir.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Session deleted.")
	return nil
}

func printCatalog(summaries []session.Summary, searchMode bool) {
	if len(summaries) == 0 {
		if searchMode {
			fmt.Println("No results found.")
		} else {
			fmt.Println("No sessions yet.")
		}
		return
	}
	for _, s := range summaries {
		preview := s.FirstMessage
		if preview == "" {
			preview = "New Chat"
		}
		if len(preview) > 40 {
			preview = preview[:40] + "..."
		}
		fmt.Printf("  %s  %-12s %3d msgs  %s\n",
			s.ID, s.GroupName, s.MessageCount, preview)
		if s.MatchingContext != "" {
			fmt.Printf("      %s\n", dimStyle.Render(s.MatchingContext))
		}
	}
	fmt.Printf("Total: %d sessions\n", len(summaries))
}

func printMessage(group string, m session.Message) {
	who := "You"
	if m.Role == session.RoleAssistant {
		who = group
	}
	fmt.Printf("%s %s\n", headerStyle.Render(who+":"), strings.TrimSpace(m.Content))
}
