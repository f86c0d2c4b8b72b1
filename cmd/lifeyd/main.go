package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/assistant"
	"github.com/lifeyhq/lifey-core/internal/config"
	"github.com/lifeyhq/lifey-core/internal/dispatch"
	"github.com/lifeyhq/lifey-core/internal/handler"
	"github.com/lifeyhq/lifey-core/internal/search"
	"github.com/lifeyhq/lifey-core/internal/storage"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
)

var (
	cfgFile string
	port    int
	showVer bool
)

var rootCmd = &cobra.Command{
	Use:   "lifeyd",
	Short: "Lifey assistant backend",
	Long: `Backend for the Lifey task assistant: streamed assistant runs,
tool-call dispatch (web search and task creation), and task storage.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVer {
			fmt.Printf("lifeyd %s (built %s)\n", Version, BuildDate)
			return
		}

		cfg := config.Load(cfgFile)

		// Override config with command line flags
		if port > 0 {
			cfg.Server.Port = port
		}

		// Missing credentials are a startup failure, never a per-request one.
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Initialize logger
		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		defer logger.Sync()

		logger.Info("starting server",
			zap.String("version", Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)

		startServer(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	rootCmd.Flags().BoolVarP(&showVer, "version", "v", false, "show version")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startServer(cfg *config.Config) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		logger.Error("failed to create storage directory", zap.Error(err))
		os.Exit(1)
	}

	tasks, err := storage.NewTaskStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open task store", zap.Error(err))
		os.Exit(1)
	}
	defer tasks.Close()

	client := assistant.NewClient(&cfg.Assistant)
	poller := assistant.NewPoller(client,
		cfg.Assistant.PollMaxAttempts,
		time.Duration(cfg.Assistant.PollIntervalMs)*time.Millisecond,
	)
	actions := assistant.NewActions(client, poller)

	searchSvc := search.NewService(&cfg.Search)
	if !searchSvc.Enabled() {
		logger.Warn("search is disabled, search tool calls will fail")
	}

	dispatcher := dispatch.NewDispatcher(searchSvc, tasks)
	h := handler.New(client, actions, searchSvc, dispatcher, tasks)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
