// ABOUTME: Status command: health probe plus credential expiry report.
// ABOUTME: The request/response path works even when the push channel cannot.

package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gauravksahni/ai-chatbot/internal/auth"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check server health and credential validity",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("server: %s\n", cfg.Server.BaseURL)

		if err := newAPIClient().Health(cmd.Context()); err != nil {
			color.Red("health: unreachable (%v)", err)
		} else {
			color.Green("health: ok")
		}

		if credential == "" {
			color.Yellow("credential: none")
			return nil
		}

		info, err := auth.Inspect(credential)
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			color.Red("credential: expired at %s", info.ExpiresAt.Format("2006-01-02 15:04"))
		case err != nil:
			color.Red("credential: %v", err)
		case info.ExpiresAt.IsZero():
			color.Green("credential: valid (no expiry claim)")
		default:
			color.Green("credential: valid until %s", info.ExpiresAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}
