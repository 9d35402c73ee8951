// ABOUTME: Interactive chat command: optimistic echo plus live push replies.
// ABOUTME: Falls back to the synchronous API when the push channel is down.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gauravksahni/ai-chatbot/internal/archive"
	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/conversation"
	"github.com/gauravksahni/ai-chatbot/internal/events"
	"github.com/gauravksahni/ai-chatbot/internal/push"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredential(); err != nil {
			return err
		}
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session")
}

// printer serializes terminal output between the input loop and push-event
// callbacks, and tracks which log entries were already shown. Tracking
// message ids rather than a count means a reconciled replacement reply still
// prints even when the log length did not grow, and a shrunk log does not
// reprint old lines.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, printed: make(map[string]bool)}
}

func (p *printer) render(log []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, msg := range log {
		if p.printed[msg.ID] {
			continue
		}
		switch msg.Role {
		case chat.RoleUser:
			color.New(color.FgGreen, color.Bold).Fprint(p.w, "you> ")
		case chat.RoleAssistant:
			color.New(color.FgCyan, color.Bold).Fprint(p.w, "assistant> ")
		default:
			color.New(color.FgYellow, color.Bold).Fprintf(p.w, "%s> ", msg.Role)
		}
		fmt.Fprintln(p.w, msg.Content)
		p.printed[msg.ID] = true
	}
}

func (p *printer) reset() {
	p.mu.Lock()
	p.printed = make(map[string]bool)
	p.mu.Unlock()
}

func runChat(ctx context.Context) error {
	apiClient := newAPIClient()
	bus := events.NewBus(logger)
	manager := push.NewManager(cfg.PushBaseURL(), bus, push.Options{
		InitialDelay:      cfg.Push.InitialDelay,
		MaxRetries:        cfg.Push.MaxRetries,
		HeartbeatInterval: cfg.Push.HeartbeatInterval,
		Logger:            logger,
	})
	store := conversation.NewStore(apiClient, logger)

	var recorder conversation.Recorder
	if cfg.Archive.Enabled {
		arc, err := archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			logger.Warn("archive unavailable", "error", err)
		} else {
			defer arc.Close()
			recorder = arc
		}
	}

	out := newPrinter(os.Stdout)
	controller := conversation.NewController(conversation.Config{
		Store:    store,
		Bus:      bus,
		Manager:  manager,
		SendAPI:  apiClient,
		Recorder: recorder,
		Logger:   logger,
		OnUpdate: func() { out.render(store.Messages()) },
		OnError: func(err error) {
			color.New(color.FgRed).Fprintf(os.Stderr, "! %v\n", err)
		},
	})
	defer controller.Close()

	if err := store.RefreshSessions(ctx); err != nil {
		return err
	}
	if chatSessionID != "" {
		if err := store.SelectSession(ctx, chatSessionID); err != nil {
			return err
		}
	}

	controller.Connect(credential)

	fmt.Printf("chatctl connected to %s\n", cfg.Server.BaseURL)
	fmt.Println("Commands: /new, /sessions, /select <id>, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			if err := store.SelectSession(ctx, ""); err != nil {
				return err
			}
			out.reset()
			fmt.Println("started a new chat")
			continue
		case line == "/sessions":
			for _, s := range store.Sessions() {
				printSessionLine(s)
			}
			continue
		case strings.HasPrefix(line, "/select "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
			if err := store.SelectSession(ctx, id); err != nil {
				color.New(color.FgRed).Fprintf(os.Stderr, "! %v\n", err)
				continue
			}
			out.reset()
			out.render(store.Messages())
			continue
		case line == "":
			continue
		}

		if _, err := controller.Send(ctx, line); err != nil {
			if errors.Is(err, chat.ErrInvalidInput) {
				continue
			}
			// The optimistic message stays visible; annotate it.
			color.New(color.FgRed).Fprintf(os.Stderr, "! send failed: %v\n", err)
		}
		if !controller.LiveUpdatesAvailable() {
			color.New(color.FgYellow).Fprintln(os.Stderr, "live updates unavailable; using synchronous sends")
		}
	}
}

func printSessionLine(s chat.Session) {
	title := s.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s  %s  %s\n",
		color.CyanString(s.SessionID),
		s.UpdatedAt.Format("2006-01-02 15:04"),
		title)
}
