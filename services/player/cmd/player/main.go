package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/config"
	"github.com/example/course-platform/internal/platform/logging"
)

type rootOptions struct {
	apiURL   string
	token    string
	logLevel string
}

func main() {
	_ = config.LoadDotEnv()
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "player",
		Short:        "Watch course videos against the progress store",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("PROGRESS_API_URL", "http://localhost:8080"), "progress store base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("PROGRESS_TOKEN"), "bearer token for the progress store")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")

	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newProgressCmd(opts))
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

func (o *rootOptions) logger() *zap.Logger {
	log, err := logging.NewWithOptions(o.logLevel, logging.Options{File: os.Getenv("LOG_FILE")})
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
