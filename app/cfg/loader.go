package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Persistence
	DataDir string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for the SQLite database"`

	// Application configuration
	ChannelsDir       string `long:"channels-dir" env:"CHANNELS_DIR" default:"./channels" description:"Directory containing channel subscription seed files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers processing queued videos"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"15" description:"Scheduler claim interval in seconds"`
	PollInterval      int    `long:"poll-interval" env:"POLL_INTERVAL" default:"300" description:"Subscription poll interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for operator endpoints (optional)"`

	// Extraction worker
	ExtractorURL     string `long:"extractor-url" env:"EXTRACTOR_URL" default:"http://localhost:8090/extract" description:"URL of the transcript extraction worker"`
	ExtractorTimeout int    `long:"extractor-timeout" env:"EXTRACTOR_TIMEOUT" default:"600" description:"Extraction worker timeout in seconds"`

	// Pipeline defaults
	MaxAttempts     int  `long:"max-attempts" env:"MAX_ATTEMPTS" default:"3" description:"Maximum processing attempts per video"`
	DiscoveryLimit  int  `long:"discovery-limit" env:"DISCOVERY_LIMIT" default:"25" description:"Maximum recent videos fetched per subscription refresh"`
	StrictFiltering bool `long:"strict-filtering" env:"STRICT_FILTERING" description:"Reject restaurants the hallucination filter marks as possible (>=0.4) instead of likely (>=0.7)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"TasteMap/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Asia/Jerusalem)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DataDir:           raw.DataDir,
		ChannelsDir:       raw.ChannelsDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		PollInterval:      raw.PollInterval,
		APIAccessKey:      raw.APIAccessKey,
		ExtractorURL:      raw.ExtractorURL,
		ExtractorTimeout:  raw.ExtractorTimeout,
		MaxAttempts:       raw.MaxAttempts,
		DiscoveryLimit:    raw.DiscoveryLimit,
		StrictFiltering:   raw.StrictFiltering,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// SetForTest overrides the singleton so packages relying on cfg.Get can be
// exercised without parsing flags.
func SetForTest(cfg *Cfg) {
	globalCfg = cfg
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
