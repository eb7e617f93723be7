// sosctl is an operator tool for the SOS console plugin.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	projectID string
	debug     bool
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "sosctl",
		Short: "Operator tool for the SOS console",
		Long: `sosctl talks to the Firestore project behind the SOS console.

Credentials are read from FIREBASE_CREDENTIALS (service account JSON, raw or
base64 encoded), which may be set in a .env file.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&projectID, "project", os.Getenv("FIREBASE_PROJECT_ID"), "Firebase project id (default from credentials)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newSimulateCmd())

	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
