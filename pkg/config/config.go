// Package config loads runtime configuration and the settings projection
// the decoration engine consumes. Values come from the environment, with a
// .env file loaded first when present. Every key has a default; only font
// size and the old-age threshold clamp, everything else is taken as given.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the tunable surface.
const (
	DefaultDebounce        = 500 * time.Millisecond
	DefaultRefreshInterval = 60 * time.Second
	DefaultInlineColor     = "rgba(128,128,128,0.6)"
	DefaultTodayColor      = "rgba(255,235,59,0.3)"
	DefaultOldColor        = "rgba(128,128,128,0.25)"
	DefaultIssueBotName    = "Linear"
	DefaultBridgeAddr      = ":7391"

	minFontSize = 10
	maxFontSize = 24
)

// Inline controls the inline preview decoration.
type Inline struct {
	Enabled         bool
	ShowTime        bool
	UseRelativeTime bool
	ShowUser        bool
	ShowChannelName bool
	FontSize        int
	Color           string
	FontStyle       string
	MaxLength       int
	// Position is fixed; previews always render after the line.
	Position string
}

// Hover controls hover content.
type Hover struct {
	ShowChannel  bool
	ShowFiles    bool
	ShowFileInfo bool
	QuoteLength  int
}

// Highlight controls the age-highlight layers.
type Highlight struct {
	Enabled    bool
	TodayColor string
	OldDays    int
	OldColor   string
}

// StatusBar controls the status surface.
type StatusBar struct {
	MaxLength int
}

// Settings is the projection handed to the decoration engine. It is a
// plain value; updates arrive as a whole new value, never by mutation.
type Settings struct {
	Inline          Inline
	Hover           Hover
	Highlight       Highlight
	StatusBar       StatusBar
	IssueBotName    string
	Debounce        time.Duration
	RefreshInterval time.Duration
}

// Runtime holds everything outside the engine projection: endpoints,
// tokens, and per-process knobs.
type Runtime struct {
	ChatToken      string
	ChatAPIBase    string
	WorkspaceHosts []string
	TrackerToken   string
	TrackerAPIURL  string
	LogFile        string
	BridgeAddr     string
	UpdateCheck    bool
}

// Config is the full loaded configuration.
type Config struct {
	Runtime  Runtime
	Settings Settings
}

// ConfigError describes a configuration problem. None of them is fatal;
// callers degrade the affected feature and keep going.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// DefaultSettings returns the settings projection with every default.
func DefaultSettings() Settings {
	return Settings{
		Inline: Inline{
			Enabled:         true,
			ShowTime:        true,
			UseRelativeTime: false,
			ShowUser:        false,
			ShowChannelName: true,
			FontSize:        12,
			Color:           DefaultInlineColor,
			FontStyle:       "italic",
			MaxLength:       50,
			Position:        "right",
		},
		Hover: Hover{
			ShowChannel:  true,
			ShowFiles:    true,
			ShowFileInfo: true,
			QuoteLength:  50,
		},
		Highlight: Highlight{
			Enabled:    false,
			TodayColor: DefaultTodayColor,
			OldDays:    7,
			OldColor:   DefaultOldColor,
		},
		StatusBar:       StatusBar{MaxLength: 100},
		IssueBotName:    DefaultIssueBotName,
		Debounce:        DefaultDebounce,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Load reads configuration from the environment. A .env in the working
// directory is merged in first; a missing file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	s := DefaultSettings()
	s.Inline.Enabled = getEnvBool("TL_INLINE_ENABLED", s.Inline.Enabled)
	s.Inline.ShowTime = getEnvBool("TL_INLINE_SHOW_TIME", s.Inline.ShowTime)
	s.Inline.UseRelativeTime = getEnvBool("TL_INLINE_RELATIVE_TIME", s.Inline.UseRelativeTime)
	s.Inline.ShowUser = getEnvBool("TL_INLINE_SHOW_USER", s.Inline.ShowUser)
	s.Inline.ShowChannelName = getEnvBool("TL_INLINE_SHOW_CHANNEL", s.Inline.ShowChannelName)
	s.Inline.FontSize = clampInt(getEnvInt("TL_INLINE_FONT_SIZE", s.Inline.FontSize), minFontSize, maxFontSize)
	s.Inline.Color = getEnv("TL_INLINE_COLOR", s.Inline.Color)
	s.Inline.FontStyle = getEnv("TL_INLINE_FONT_STYLE", s.Inline.FontStyle)
	s.Inline.MaxLength = getEnvInt("TL_INLINE_MAX_LENGTH", s.Inline.MaxLength)

	s.Hover.ShowChannel = getEnvBool("TL_HOVER_SHOW_CHANNEL", s.Hover.ShowChannel)
	s.Hover.ShowFiles = getEnvBool("TL_HOVER_SHOW_FILES", s.Hover.ShowFiles)
	s.Hover.ShowFileInfo = getEnvBool("TL_HOVER_SHOW_FILE_INFO", s.Hover.ShowFileInfo)
	s.Hover.QuoteLength = getEnvInt("TL_HOVER_QUOTE_LENGTH", s.Hover.QuoteLength)

	s.Highlight.Enabled = getEnvBool("TL_HIGHLIGHT_ENABLED", s.Highlight.Enabled)
	s.Highlight.TodayColor = getEnv("TL_HIGHLIGHT_TODAY_COLOR", s.Highlight.TodayColor)
	s.Highlight.OldDays = getEnvInt("TL_HIGHLIGHT_OLD_DAYS", s.Highlight.OldDays)
	if s.Highlight.OldDays < 1 {
		s.Highlight.OldDays = 1
	}
	s.Highlight.OldColor = getEnv("TL_HIGHLIGHT_OLD_COLOR", s.Highlight.OldColor)

	s.StatusBar.MaxLength = getEnvInt("TL_STATUS_MAX_LENGTH", s.StatusBar.MaxLength)
	s.IssueBotName = getEnv("TL_ISSUE_BOT", s.IssueBotName)
	s.Debounce = getEnvMillis("TL_DEBOUNCE_MS", s.Debounce)
	s.RefreshInterval = getEnvSeconds("TL_REFRESH_SECONDS", s.RefreshInterval)

	return &Config{
		Runtime: Runtime{
			ChatToken:      getEnv("TL_CHAT_TOKEN", ""),
			ChatAPIBase:    getEnv("TL_CHAT_API_BASE", ""),
			WorkspaceHosts: splitHosts(getEnv("TL_WORKSPACE_HOSTS", "")),
			TrackerToken:   getEnv("TL_TRACKER_TOKEN", ""),
			TrackerAPIURL:  getEnv("TL_TRACKER_API_URL", ""),
			LogFile:        getEnv("TL_LOG_FILE", ""),
			BridgeAddr:     getEnv("TL_BRIDGE_ADDR", DefaultBridgeAddr),
			UpdateCheck:    !getEnvBool("TL_NO_UPDATE_CHECK", false),
		},
		Settings: s,
	}
}

// Validate reports configuration problems worth surfacing. Missing tokens
// disable their feature instead of stopping the program.
func (c *Config) Validate() []error {
	var errs []error
	if c.Runtime.ChatToken == "" {
		errs = append(errs, &ConfigError{Key: "TL_CHAT_TOKEN", Reason: "not set; message resolution disabled"})
	}
	if c.Runtime.TrackerToken == "" {
		errs = append(errs, &ConfigError{Key: "TL_TRACKER_TOKEN", Reason: "not set; issue lookups disabled"})
	}
	return errs
}

func splitHosts(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if h := strings.TrimSpace(p); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if n := getEnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if n := getEnvInt(key, -1); n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
