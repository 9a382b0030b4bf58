package config

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ControllerConfig holds configuration for the Huma control API.
type ControllerConfig struct {
	CDPAddress       string
	CDPPort          int
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	TabURLFilter     string
	EvalTimeoutMS    int
	LogLevel         string
	LogFile          string

	DataDir      string
	StoreBackend string
	RewardsSeed  string
	TipLogMaxMB  int
	NotifyURL    string

	LaunchBrowser bool
	ProfileDir    string
	StartURL      string
}

// LoadController reads controller configuration from environment variables.
func LoadController() (*ControllerConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &ControllerConfig{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:         getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8288"),
		PortCandidates:   getEnvListOrDefault("CONTROLLER_PORT_CANDIDATES", []string{"127.0.0.1:8289", "127.0.0.1:8290"}),
		PortAutoFallback: getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", false),
		TabURLFilter:     getEnvOrDefault("CONTROLLER_TAB_URL_FILTER", ""),
		EvalTimeoutMS:    getEnvIntOrDefault("CONTROLLER_EVAL_TIMEOUT_MS", 5000),
		LogLevel:         strings.ToLower(getEnvOrDefault("CONTROLLER_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CONTROLLER_LOG_FILE", "logs/tipshield_controller.log"),
		DataDir:          getEnvOrDefault("TIPSHIELD_DATA_DIR", "./tipshield_data"),
		StoreBackend:     strings.ToLower(getEnvOrDefault("TIPSHIELD_STORE_BACKEND", "file")),
		RewardsSeed:      getEnvOrDefault("TIPSHIELD_REWARDS_SEED", "./config/rewards.yaml"),
		TipLogMaxMB:      getEnvIntOrDefault("TIPSHIELD_TIP_LOG_MAX_MB", 50),
		NotifyURL:        getEnvOrDefault("TIPSHIELD_NOTIFY_URL", ""),
		LaunchBrowser:    getEnvBoolOrDefault("CONTROLLER_LAUNCH_BROWSER", false),
		ProfileDir:       getEnvOrDefault("CONTROLLER_BROWSER_PROFILE_DIR", "./browser_profile"),
		StartURL:         getEnvOrDefault("CONTROLLER_BROWSER_START_URL", "https://soundcloud.com"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	return cfg, nil
}

// ControllerCDPURL returns CDP endpoint URL for controller use.
func (c *ControllerConfig) ControllerCDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}
