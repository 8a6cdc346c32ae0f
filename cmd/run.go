package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lingorelay/pkg/channel/telegram"
	"lingorelay/pkg/config"
	"lingorelay/pkg/gateway"
	"lingorelay/pkg/logger"
	"lingorelay/pkg/translate"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the translation relay",
	Long:  "Runs LingoRelay against the configured Telegram chat, with the control endpoint for health checks, pause/resume, and configuration reload.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		adapter, err := telegram.NewAdapter(cfg.Telegram, log)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		translator := translate.New(cfg, nil, log)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, adapter, translator, log)
		if err != nil {
			log.Error("Failed to initialize relay service", "error", err)
			return
		}

		log.Info("Relay started",
			"channel", adapter.Name(),
			"chat", cfg.TargetChatID,
			"model", cfg.Model,
			"pairs", pairKeys(cfg),
			"credentials", len(cfg.APIKeys),
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func pairKeys(cfg *config.Config) string {
	keys := make([]string, 0, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		keys = append(keys, pair.Key)
	}

	return strings.Join(keys, ",")
}
