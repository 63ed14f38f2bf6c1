package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mikeboe/luma/pkg/config"
	"github.com/mikeboe/luma/pkg/database"
	"github.com/mikeboe/luma/pkg/extract"
	"github.com/mikeboe/luma/pkg/provider"
	"github.com/mikeboe/luma/pkg/router"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
	"github.com/spf13/cobra"
)

var (
	backendName string
	sqlitePath  string
	verbose     bool
)

// app is the wiring shared by every command.
type app struct {
	store      *settings.Store
	background *router.Router
	content    *router.Router
	fetcher    *extract.Fetcher
	close      func()
}

func newApp(ctx context.Context) (*app, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Load()
	if backendName != "" {
		cfg.SettingsBackend = backendName
	}
	if sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backends, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	store := settings.NewStore(backends.Settings, logger)
	store.Load(ctx)

	return &app{
		store:      store,
		background: router.NewBackground(tasks.NewService(provider.NewBuilder(), logger), store, logger),
		content:    router.NewContent(extract.Extract, logger),
		fetcher:    extract.NewFetcher(),
		close:      backends.Close,
	}, nil
}

// run builds the app and hands it to fn.
func run(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a, cmd, args)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "luma",
		Short:         "Summarize, mind-map and chat about web pages",
		Long:          `Luma extracts the readable article of a web page and sends it to the configured LLM provider for a summary, a mind map or a conversation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Settings backend (memory, sqlite, postgres, none); defaults to SETTINGS_BACKEND")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "db", "", "SQLite file for the sqlite backend; defaults to SQLITE_PATH")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newExtractCmd(),
		newSummarizeCmd(),
		newMindMapCmd(),
		newChatCmd(),
		newSettingsCmd(),
	)
	return rootCmd
}

func main() {
	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
