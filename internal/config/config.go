package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds configuration for the tip injector.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Tab matching and behavior
	TabURLFilter      string
	ReloadOnAttach    bool
	TabPollIntervalMS int

	// Message channel to the controller
	ControllerURL    string
	MessageTimeoutMS int

	// Loop cadence
	ScanIntervalMS     int
	MutationDebounceMS int
	ObserveMutations   bool

	// Injected labels
	SiteKey   string
	TipLabel  string
	HoverText string

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:         getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:            getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:       getEnvOrDefault("INJECTOR_TAB_URL_FILTER", "soundcloud.com"),
		ReloadOnAttach:     getEnvBoolOrDefault("INJECTOR_RELOAD_ON_ATTACH", false),
		TabPollIntervalMS:  getEnvIntOrDefault("INJECTOR_TAB_POLL_INTERVAL_MS", 5000),
		ControllerURL:      strings.TrimRight(getEnvOrDefault("INJECTOR_CONTROLLER_URL", "http://127.0.0.1:8288"), "/"),
		MessageTimeoutMS:   getEnvIntOrDefault("TIPSHIELD_MESSAGE_TIMEOUT_MS", 2000),
		ScanIntervalMS:     getEnvIntOrDefault("INJECTOR_SCAN_INTERVAL_MS", 3000),
		MutationDebounceMS: getEnvIntOrDefault("INJECTOR_MUTATION_DEBOUNCE_MS", 250),
		ObserveMutations:   getEnvBoolOrDefault("INJECTOR_OBSERVE_MUTATIONS", true),
		SiteKey:            getEnvOrDefault("INJECTOR_SITE_KEY", "soundcloud"),
		TipLabel:           getEnvOrDefault("INJECTOR_TIP_LABEL", "Tip"),
		HoverText:          getEnvOrDefault("INJECTOR_HOVER_TEXT", "Tip this creator"),
		LogLevel:           strings.ToLower(getEnvOrDefault("INJECTOR_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("INJECTOR_LOG_FILE", "logs/tip_injector.log"),
	}
	if cfg.ScanIntervalMS < 100 {
		cfg.ScanIntervalMS = 100
	}
	if cfg.TabPollIntervalMS < 500 {
		cfg.TabPollIntervalMS = 500
	}
	if cfg.MessageTimeoutMS < 100 {
		cfg.MessageTimeoutMS = 100
	}

	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
