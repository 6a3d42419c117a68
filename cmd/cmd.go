// Package cmd provides the promptwise CLI commands.
//
// Commands:
//   - chat: interactive terminal conversation with the Bubble Tea interface
//   - serve: request/response HTTP API
//
// Both commands handle SIGINT/SIGTERM via context cancellation and shut
// down gracefully.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the promptwise CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "serve":
		return runServe()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("PromptWise - turn rough prompts into precise ones")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  promptwise chat          Start an interactive optimization conversation")
	fmt.Println("  promptwise serve [addr]  Start the HTTP API server (default: 127.0.0.1:3500)")
	fmt.Println("  promptwise --version     Show version information")
	fmt.Println("  promptwise --help        Show this help")
	fmt.Println()
	fmt.Println("Chat commands (in interactive mode):")
	fmt.Println("  /start             Begin a new conversation")
	fmt.Println("  /cancel            Cancel the current conversation")
	fmt.Println("  /clear             Clear the transcript")
	fmt.Println("  /exit, /quit       Exit")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY            Required: Gemini API key")
	fmt.Println("  PROMPTWISE_POSTGRES_URL   Optional: enables optimization logging")
	fmt.Println("  PROMPTWISE_MODEL_NAME     Optional: override the model")
	fmt.Println("  PROMPTWISE_LOG_LEVEL      Optional: debug, info, warn, error")
}
