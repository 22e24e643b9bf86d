// Package config loads settings from an optional TOML file and the
// environment. Environment variables always win over the file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileEnv names the environment variable holding the TOML config path.
const FileEnv = "KICHO_CONFIG"

// Export backends.
const (
	ExportMemory = "memory"
	ExportSheets = "sheets"
)

type Config struct {
	// HTTP Server
	Port string `toml:"port"`

	// Database
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// AMQP; an empty URL disables events.
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Ledger export
	ExportBackend            string `toml:"export_backend"`
	GoogleSpreadsheetID      string `toml:"google_spreadsheet_id"`
	GoogleSheetName          string `toml:"google_sheet_name"`
	GoogleServiceAccountFile string `toml:"google_service_account_file"`
	GoogleServiceAccountJSON string `toml:"google_service_account_json"`

	// Bookkeeping
	FiscalYearStartMonth int `toml:"fiscal_year_start_month"`

	// AuthTokens is "token:owner,token:owner".
	AuthTokens string `toml:"auth_tokens"`

	LedgerCacheSize int      `toml:"ledger_cache_size"`
	LedgerCacheTTL  Duration `toml:"ledger_cache_ttl"`
	RateLimitRPM    int      `toml:"rate_limit_rpm"`

	LogLevel       string `toml:"log_level"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
	MetricsPort    string `toml:"metrics_port"`
}

// Duration is a time.Duration written as "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:                 "8081",
		SQLiteDBPath:         "./data/kicho.db",
		AMQPExchange:         "kicho",
		AMQPQueue:            "kicho.ledger_export",
		ExportBackend:        ExportMemory,
		GoogleSheetName:      "総勘定元帳",
		FiscalYearStartMonth: 1,
		LedgerCacheSize:      256,
		LedgerCacheTTL:       Duration{5 * time.Minute},
		RateLimitRPM:         60,
		LogLevel:             "info",
		MetricsEnabled:       true,
		MetricsPort:          "9091",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// KICHO_CONFIG (if any) and environment variables, in that order.
// Unparseable numeric environment values keep the previous value.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.ExportBackend = getEnv("EXPORT_BACKEND", c.ExportBackend)
	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", c.GoogleSheetName)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)

	c.FiscalYearStartMonth = getEnvInt("FISCAL_YEAR_START_MONTH", c.FiscalYearStartMonth)
	c.AuthTokens = getEnv("AUTH_TOKENS", c.AuthTokens)

	c.LedgerCacheSize = getEnvInt("LEDGER_CACHE_SIZE", c.LedgerCacheSize)
	c.LedgerCacheTTL.Duration = getEnvDuration("LEDGER_CACHE_TTL", c.LedgerCacheTTL.Duration)
	c.RateLimitRPM = getEnvInt("RATE_LIMIT_RPM", c.RateLimitRPM)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.MetricsPort = getEnv("METRICS_PORT", c.MetricsPort)
}

// Tokens parses AuthTokens into a token → owner map.
func (c *Config) Tokens() (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.AuthTokens, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, owner, ok := strings.Cut(pair, ":")
		token, owner = strings.TrimSpace(token), strings.TrimSpace(owner)
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("invalid auth token entry %q: want token:owner", pair)
		}
		if _, dup := out[token]; dup {
			return nil, fmt.Errorf("duplicate auth token for owner %q", owner)
		}
		out[token] = owner
	}
	return out, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.ExportBackend {
	case ExportMemory:
	case ExportSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of [%s %s]", c.ExportBackend, ExportMemory, ExportSheets))
	}

	if c.FiscalYearStartMonth < 1 || c.FiscalYearStartMonth > 12 {
		errors = append(errors, fmt.Sprintf("invalid fiscal year start month %d: must be between 1 and 12", c.FiscalYearStartMonth))
	}

	if _, err := c.Tokens(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.LedgerCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid ledger cache size %d: must be at least 1", c.LedgerCacheSize))
	}
	if c.LedgerCacheTTL.Duration < time.Second {
		errors = append(errors, fmt.Sprintf("invalid ledger cache TTL %v: must be at least 1 second", c.LedgerCacheTTL.Duration))
	}
	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
