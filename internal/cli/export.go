// ABOUTME: Transcript export command: markdown or HTML, to stdout or a file.
// ABOUTME: Prefers the live API; falls back to the local archive when offline.

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gauravksahni/ai-chatbot/internal/archive"
	"github.com/gauravksahni/ai-chatbot/internal/chat"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := fetchSession(cmd, args[0])
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "markdown", "md":
			return archive.ExportMarkdown(out, session)
		case "html":
			return archive.ExportHTML(out, session)
		default:
			return fmt.Errorf("unknown format %q (use markdown or html)", exportFormat)
		}
	},
}

// fetchSession reads the transcript from the API, falling back to the local
// archive so exports still work offline.
func fetchSession(cmd *cobra.Command, id string) (*chat.Session, error) {
	if credential != "" {
		session, err := newAPIClient().GetSession(cmd.Context(), id)
		if err == nil {
			return session, nil
		}
		logger.Warn("fetching session from API failed, trying archive", "error", err)
	}

	if !cfg.Archive.Enabled {
		return nil, fmt.Errorf("session unavailable: no credential and archive disabled")
	}

	arc, err := archive.Open(cfg.Archive.Path, logger)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	return arc.GetSession(id)
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "markdown", "output format: markdown or html")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
}
