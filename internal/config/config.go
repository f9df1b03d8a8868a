package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               int
	AutoForkURL        string
	DatabaseURL        string
	NatsURL            string
	PollInterval       time.Duration
	HealthInterval     time.Duration
	FetchTimeout       time.Duration
	WatchLimit         int
	SessionListSize    int
	TickerMax          int
	ContributionMax    int
	WeavePython        string
	WeaveScript        string
	WeaveProject       string
	SubmitTimeout      time.Duration
	LogLevel           string
	SlackBotToken      string
	SlackNotifyChannel string
}

func Load() Config {
	return Config{
		Port:               envInt("BEACON_PORT", 8710),
		AutoForkURL:        envStr("AUTOFORK_URL", "http://localhost:8100"),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		NatsURL:            envStr("NATS_URL", ""),
		PollInterval:       time.Duration(envInt("POLL_INTERVAL_MS", 10000)) * time.Millisecond,
		HealthInterval:     time.Duration(envInt("HEALTH_INTERVAL_MS", 15000)) * time.Millisecond,
		FetchTimeout:       time.Duration(envInt("FETCH_TIMEOUT_MS", 2500)) * time.Millisecond,
		WatchLimit:         envInt("WATCH_LIMIT", 5),
		SessionListSize:    envInt("SESSION_LIST_SIZE", 10),
		TickerMax:          envInt("TICKER_MAX", 50),
		ContributionMax:    envInt("CONTRIBUTION_MAX", 20),
		WeavePython:        envStr("WEAVE_PYTHON", "python3"),
		WeaveScript:        envStr("WEAVE_SCRIPT", "scripts/push_pattern.py"),
		WeaveProject:       envStr("WEAVE_PROJECT", "autofork-console"),
		SubmitTimeout:      time.Duration(envInt("SUBMIT_TIMEOUT_MS", 20000)) * time.Millisecond,
		LogLevel:           envStr("LOG_LEVEL", "info"),
		SlackBotToken:      envStr("SLACK_BOT_TOKEN", ""),
		SlackNotifyChannel: envStr("SLACK_NOTIFY_CHANNEL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
