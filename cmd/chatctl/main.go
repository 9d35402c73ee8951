// ABOUTME: Entry point for chatctl, the terminal client for ai-chatbot.
// ABOUTME: All behavior lives in internal/cli.

package main

import (
	"fmt"
	"os"

	"github.com/gauravksahni/ai-chatbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
