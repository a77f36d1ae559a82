// Interactive chat: resume a session (or start one) and exchange messages.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fish-not-phish/RansomNegotiator/internal/directory"
)

var chatGroup string

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Chat interactively in a session",
	Long: `Chat interactively in a negotiation session.

With a session id, resumes that session. With --group and no id, starts a
new session against that counterparty. Type /quit to leave; the session
stays on the server.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatGroup, "group", "", "start a new session with this group")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	// The chat loop can run for a long time; pick up config edits (poll
	// interval) without forcing a restart.
	stopWatch := a.watchConfig()
	defer stopWatch()

	switch {
	case len(args) == 1:
		if err := a.dir.Load(ctx, args[0]); err != nil {
			return err
		}
	case chatGroup != "":
		err := a.dir.Create(ctx, directory.CreateParams{GroupName: chatGroup})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("provide a session id or --group to start a new session")
	}

	group := a.active.GroupName()
	fmt.Println(headerStyle.Render("Negotiation with " + group))
	for _, m := range a.active.Messages() {
		printMessage(group, m)
	}
	fmt.Println(dimStyle.Render("Type /quit to leave."))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}

		reply, err := a.poller.Send(ctx, text)
		if err != nil {
			fmt.Println(dimStyle.Render("error: " + err.Error()))
			continue
		}
		printMessage(group, reply)
	}
	return scanner.Err()
}
