package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/bus"
	"remindbot/internal/channel"
	"remindbot/internal/config"
	"remindbot/internal/metrics"
	"remindbot/internal/store"
	"remindbot/internal/sweep"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "remindbot",
		Short: "remindbot: conversational Telegram reminder bot",
		Long:  "remindbot walks a Telegram user through creating a reminder (message, date, time) and delivers due reminders back on schedule.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.remindbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				logger.Info("config already exists, leaving it untouched", "config", cfgPath)
				return nil
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "db", cfg.Storage.DBPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfigOrDefaults is for commands that should work on a fresh machine.
func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func loadTexts(cfg *config.Config) *bot.Texts {
	if cfg.Texts.Path == "" {
		return bot.DefaultTexts()
	}
	texts, err := bot.LoadTexts(cfg.Texts.Path)
	if err != nil {
		logger.Warn("cannot load texts file, using defaults", "path", cfg.Texts.Path, "err", err)
		return bot.DefaultTexts()
	}
	return texts
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal",
		Long:  "Runs the full conversation flow against the local database, with terminal stand-ins for Telegram messages.",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	texts := loadTexts(cfg)
	handler := bot.NewHandler(bot.HandlerConfig{
		Machine:   bot.NewMachine(texts),
		Users:     st,
		States:    st,
		Reminders: st,
		Bus:       messageBus,
		Logger:    logger,
	})
	go handler.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})

	// Deliver due reminders to the terminal too, so a chat session behaves
	// like the real thing end to end.
	sweeper := sweep.New(sweep.Config{
		Store:     st,
		Notifier:  cliCh,
		Texts:     texts,
		Logger:    logger,
		BatchSize: cfg.Sweep.BatchSize,
	})
	if cfg.Sweep.Enabled {
		loop := sweep.NewLoop(sweeper, time.Duration(cfg.Sweep.IntervalSeconds)*time.Second, logger)
		go loop.Start(ctx)
	}

	return cliCh.Start(ctx, messageBus)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one delivery sweep and exit",
		Long:  "Selects due unsent reminders and dispatches them to Telegram. Useful from cron or for debugging.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			texts := loadTexts(cfg)
			telegramCh := channel.NewTelegram(channel.TelegramConfig{
				Token:     cfg.Telegram.Token,
				AllowFrom: cfg.Telegram.AllowFrom,
				ParseMode: cfg.Telegram.ParseMode,
				Texts:     texts,
				Logger:    logger,
			})

			sweeper := sweep.New(sweep.Config{
				Store:     st,
				Notifier:  telegramCh,
				Texts:     texts,
				Logger:    logger,
				BatchSize: cfg.Sweep.BatchSize,
			})
			delivered, err := sweeper.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Delivered %d reminder(s)\n", delivered)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			logger.Info("telegram", "token_configured", cfg.Telegram.Token != "", "allow_from", len(cfg.Telegram.AllowFrom))

			st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
			if err != nil {
				logger.Info("storage", "path", cfg.Storage.DBPath, "reachable", false, "err", err)
				return nil
			}
			defer st.Close()

			pending, err := st.PendingCount(context.Background())
			if err != nil {
				logger.Info("storage", "path", cfg.Storage.DBPath, "reachable", false, "err", err)
				return nil
			}
			logger.Info("storage", "path", cfg.Storage.DBPath, "reachable", true, "pending_reminders", pending)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. sweep.intervalSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. sweep.batchSize 100)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start gateway (Telegram + bot loop + delivery sweep)",
		Long:  "Starts the Telegram channel (long polling or webhook server), the conversation handler, and the periodic delivery sweep. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(100, logger)

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return fmt.Errorf("reminder store: %w", err)
	}
	defer st.Close()

	texts := loadTexts(cfg)

	handler := bot.NewHandler(bot.HandlerConfig{
		Machine:   bot.NewMachine(texts),
		Users:     st,
		States:    st,
		Reminders: st,
		Bus:       messageBus,
		Logger:    logger,
	})
	go handler.Run(ctx)

	telegramCh := channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Telegram.Token,
		AllowFrom: cfg.Telegram.AllowFrom,
		ParseMode: cfg.Telegram.ParseMode,
		Texts:     texts,
		Logger:    logger,
	})

	sweeper := sweep.New(sweep.Config{
		Store:     st,
		Notifier:  telegramCh,
		Texts:     texts,
		Logger:    logger,
		BatchSize: cfg.Sweep.BatchSize,
	})

	var sweepLoop *sweep.Loop
	if cfg.Sweep.Enabled {
		sweepLoop = sweep.NewLoop(sweeper, time.Duration(cfg.Sweep.IntervalSeconds)*time.Second, logger)
		go sweepLoop.Start(ctx)
		go refreshPendingGauge(ctx, st, time.Duration(cfg.Sweep.IntervalSeconds)*time.Second)
	} else {
		logger.Info("periodic sweep disabled")
	}

	var webhookSrv *channel.WebhookServer
	if cfg.Webhook.Enabled {
		// Webhook mode: Telegram pushes updates to us, so no polling loop.
		telegramCh.RegisterOutbound(messageBus)

		srvCfg := channel.WebhookServerConfig{
			Host:    cfg.Webhook.Host,
			Port:    cfg.Webhook.Port,
			Path:    cfg.Webhook.Path,
			Secret:  cfg.Webhook.Secret,
			Sink:    telegramCh,
			Sweeper: sweeper,
			Logger:  logger,
		}
		if cfg.Metrics.Enabled {
			srvCfg.Metrics = metrics.Collector.Handler()
		}
		webhookSrv = channel.NewWebhookServer(srvCfg)
		go func() {
			if err := webhookSrv.Start(ctx); err != nil {
				logger.Error("webhook server error", "err", err)
			}
		}()
	} else {
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version, "webhook", cfg.Webhook.Enabled)

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down gateway...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if sweepLoop != nil {
			sweepLoop.Stop()
		}
		telegramCh.Stop()
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

// refreshPendingGauge keeps the pending-reminders gauge roughly current.
func refreshPendingGauge(ctx context.Context, st *store.SQLiteStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := st.PendingCount(ctx); err == nil {
				metrics.PendingReminders.Set(int64(n))
			}
		}
	}
}
