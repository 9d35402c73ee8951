// ABOUTME: Root command and shared setup for the chatctl CLI.
// ABOUTME: Resolves config, profile, credential, and logger for subcommands.

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gauravksahni/ai-chatbot/internal/api"
	"github.com/gauravksahni/ai-chatbot/internal/auth"
	"github.com/gauravksahni/ai-chatbot/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	// Global flags
	configPath  string
	profileName string
	tokenFlag   string
	serverFlag  string

	// Resolved in PersistentPreRunE
	cfg        *config.Config
	credential string
	logger     *slog.Logger
	logCleanup func() error
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Terminal client for the ai-chatbot conversation API",
	Long: `chatctl talks to an ai-chatbot deployment: interactive chat with live
replies over the push channel, session management, and local transcript
export. When the push channel is unavailable, sends fall back to the
synchronous API automatically.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		profiles, err := config.LoadProfiles(config.ProfilesPath())
		if err != nil {
			return err
		}
		profile, err := profiles.Resolve(profileName)
		if err != nil {
			return err
		}
		if profile != nil {
			cfg.Server.BaseURL = profile.BaseURL
			if profile.PushURL != "" {
				cfg.Server.PushURL = profile.PushURL
			}
		}
		if serverFlag != "" {
			cfg.Server.BaseURL = serverFlag
			cfg.Server.PushURL = ""
		}

		logger, logCleanup = config.SetupLogger(cfg.Logging)
		slog.SetDefault(logger)

		credential = resolveCredential()
		if credential != "" {
			if _, err := auth.Inspect(credential); errors.Is(err, auth.ErrExpiredToken) {
				fmt.Fprintln(os.Stderr, "Warning: credential is expired; the server will reject it")
			}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// resolveCredential prefers the flag, then the environment.
func resolveCredential() string {
	if tokenFlag != "" {
		return tokenFlag
	}
	return os.Getenv("CHATBOT_TOKEN")
}

// requireCredential fails commands that cannot work anonymously.
func requireCredential() error {
	if credential == "" {
		return fmt.Errorf("no credential: pass --token or set CHATBOT_TOKEN")
	}
	return nil
}

// newAPIClient builds the request/response client from the resolved config.
func newAPIClient() *api.Client {
	return api.New(cfg.Server.BaseURL, credential)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "server profile name")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer credential (overrides CHATBOT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "server base URL (overrides config and profile)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
}
