package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const minPostInterval = time.Second

type rawCfg struct {
	// Instance configuration
	ConfigPath string `long:"config" short:"c" env:"CONFIG_PATH" default:"config/appsettings.yaml" description:"Path to the instance configuration file"`
	DBPath     string `long:"db-path" env:"DB_PATH" default:"data/rss-relay.db" description:"SQLite database holding reference posts"`

	// HTTP
	Port               string   `long:"port" env:"PORT" default:"8080" description:"Observability server port"`
	ConcurrentRequests int      `long:"concurrent-requests" env:"CONCURRENT_REQUESTS" default:"20" description:"Process-wide bound on outbound requests"`
	UserAgent          string   `long:"user-agent" env:"USER_AGENT" default:"RSS Relay/1.0" description:"User agent for feed requests"`
	FallbackUserAgents []string `long:"fallback-user-agent" env:"FALLBACK_USER_AGENTS" env-delim:";" description:"User agent tried when a site rejects the default one (repeatable)"`
	HTTPTimeout        int      `long:"http-timeout" env:"HTTP_TIMEOUT" default:"30" description:"HTTP client timeout in seconds"`
	PostMinInterval    int      `long:"post-min-interval" env:"POST_MIN_INTERVAL" default:"2" description:"Minimum seconds between webhook deliveries"`
	APIAccessKey       string   `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for /api endpoints (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`

	// Logging
	Debug         bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat     string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
	LogFile       string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this file, rotated by size"`
	LogMaxSize    int    `long:"log-max-size" env:"LOG_MAX_SIZE" default:"10" description:"Megabytes before the log file is rotated"`
	LogMaxBackups int    `long:"log-max-backups" env:"LOG_MAX_BACKUPS" default:"5" description:"Rotated log files to keep"`
	LogMaxAge     int    `long:"log-max-age" env:"LOG_MAX_AGE" default:"28" description:"Days to keep rotated log files"`

	Args struct {
		Config string `positional-arg-name:"config" description:"Path to the instance configuration file"`
	} `positional-args:"yes"`
}

// Load parses the process arguments and environment. It returns nil, nil
// when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	postInterval := time.Duration(raw.PostMinInterval) * time.Second
	if postInterval < minPostInterval {
		postInterval = minPostInterval
	}

	cfg := &Cfg{
		ConfigPath:         cmp.Or(raw.Args.Config, raw.ConfigPath),
		DBPath:             raw.DBPath,
		Port:               raw.Port,
		ConcurrentRequests: max(raw.ConcurrentRequests, 1),
		UserAgent:          raw.UserAgent,
		FallbackUserAgents: raw.FallbackUserAgents,
		HTTPTimeout:        time.Duration(max(raw.HTTPTimeout, 1)) * time.Second,
		PostMinInterval:    postInterval,
		APIAccessKey:       raw.APIAccessKey,
		Timezone:           raw.Timezone,
		Version:            GetVersion(),
	}
	cfg.Log.Debug = raw.Debug
	cfg.Log.Format = raw.LogFormat
	cfg.Log.File = raw.LogFile
	cfg.Log.MaxSize = raw.LogMaxSize
	cfg.Log.MaxBackups = raw.LogMaxBackups
	cfg.Log.MaxAge = raw.LogMaxAge

	return cfg, nil
}

// ApplyTimezone sets time.Local to the configured zone.
func (c *Cfg) ApplyTimezone() error {
	return applyTimezone(c.Timezone)
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
