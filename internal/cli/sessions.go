// ABOUTME: Session management subcommands: list, new, rename, rm.
// ABOUTME: Thin wrappers over the request/response API.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredential(); err != nil {
			return err
		}

		sessions, err := newAPIClient().History(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, s := range sessions {
			printSessionLine(chat.Session{
				SessionID: s.SessionID,
				Title:     s.Title,
				UpdatedAt: s.UpdatedAt,
			})
		}
		return nil
	},
}

var newTitle string

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredential(); err != nil {
			return err
		}

		session, err := newAPIClient().CreateSession(cmd.Context(), newTitle)
		if err != nil {
			return err
		}
		fmt.Println(session.SessionID)
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>",
	Short: "Change a session's title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredential(); err != nil {
			return err
		}

		if _, err := newAPIClient().UpdateSession(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredential(); err != nil {
			return err
		}

		return newAPIClient().DeleteSession(cmd.Context(), args[0])
	},
}

func init() {
	sessionsNewCmd.Flags().StringVar(&newTitle, "title", "", "session title")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
}
