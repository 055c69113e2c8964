package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type runCommand struct{}

type serveCommand struct {
	Port     string `long:"port" env:"PORT" default:"8080" description:"HTTP port for the preview server"`
	Interval int    `long:"interval" env:"SERVE_INTERVAL" default:"0" description:"Run a digest every N seconds while serving (0 disables)"`
}

type rawCfg struct {
	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" default:"./digest.yml" description:"Newsletter configuration file"`
	DBPath     string `long:"db" env:"DB_PATH" default:"./data/digest.db" description:"SQLite ledger path"`
	OutputDir  string `short:"o" long:"output" env:"OUTPUT_DIR" default:"./public" description:"Directory for rendered HTML"`

	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Digest/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for archive dates (e.g., UTC, Europe/Berlin)"`

	LogFormat  string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
	LogFile    string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this file, rotated"`
	LogMaxSize int    `long:"log-max-size" env:"LOG_MAX_SIZE" default:"16" description:"Rotate the log file after this many megabytes"`
	Debug      bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Run   runCommand   `command:"run" description:"Fetch feeds, select new items and render the digest (default)"`
	Serve serveCommand `command:"serve" description:"Serve the rendered digest and run statistics"`
}

// Load parses flags and environment. A nil config with a nil error means help
// was printed.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	command := CommandRun
	if parser.Active != nil {
		command = parser.Active.Name
	}

	if raw.Serve.Interval < 0 {
		return nil, fmt.Errorf("serve interval must be non-negative")
	}

	cfg := &Cfg{
		ConfigFile: raw.ConfigFile,
		DBPath:     raw.DBPath,
		OutputDir:  raw.OutputDir,
		Command:    command,
		Port:       raw.Serve.Port,
		Interval:   time.Duration(raw.Serve.Interval) * time.Second,
		UserAgent:  raw.UserAgent,
		Timezone:   raw.Timezone,
		LogFormat:  raw.LogFormat,
		LogFile:    raw.LogFile,
		LogMaxSize: raw.LogMaxSize,
		Debug:      raw.Debug,
		Version:    GetVersion(),
	}

	return cfg, nil
}

// ApplyTimezone sets time.Local so archive dates follow the operator's day.
func ApplyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}
