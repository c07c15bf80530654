package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			Token:     "${TELEGRAM_BOT_TOKEN:-}",
			ParseMode: "HTML",
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "remindbot.db"),
		},
		Webhook: WebhookConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
			Path:    "/webhook",
		},
		Sweep: SweepConfig{
			Enabled:         true,
			IntervalSeconds: 30,
			BatchSize:       50,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
