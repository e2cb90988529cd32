// Package cmd contains the command line entry points: the HTTP API server
// (default), the MCP server on stdio, and version/help output.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bitgeese/sequential-questioning/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Execute is the main entry point. It routes to the requested mode and is
// designed to be called from main().
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "mcp":
			return runMCP()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	return runServe()
}

// initLogger builds the process-wide structured logger.
//
// Log level is controlled by the DEBUG environment variable. Logging goes
// to stderr: in MCP mode stdout carries JSON-RPC messages only.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}

	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)
	return logger
}

// printVersion displays version information.
func printVersion() {
	fmt.Printf("sequential-questioning %s\n", Version)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

// printHelp displays the help message.
func printHelp() {
	fmt.Println("sequential-questioning - multi-round question generation service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sequential-questioning              Start the HTTP API server (default)")
	fmt.Println("  sequential-questioning serve        Start the HTTP API server")
	fmt.Println("  sequential-questioning mcp          Start the MCP server on stdio")
	fmt.Println("  sequential-questioning version      Show version information")
	fmt.Println("  sequential-questioning help         Show this help")
	fmt.Println()
	fmt.Println("Endpoints (serve mode):")
	fmt.Println("  POST /question            Generate the next batch of questions")
	fmt.Println("  POST /question/follow-up  Generate follow-ups to answered questions")
	fmt.Println("  POST /question/automatic  Run a multi-round question flow in one call")
	fmt.Println("  GET  /api/sessions        List user sessions")
	fmt.Println("  GET  /health, /ready      Health probes")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Optional: PostgreSQL connection URL")
	fmt.Println("  SQ_SERVER_ADDR     Optional: HTTP listen address (default 127.0.0.1:8000)")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
}
