package cfg

import "time"

const (
	CommandRun   = "run"
	CommandServe = "serve"
)

type Cfg struct {
	// Storage and input/output locations
	ConfigFile string
	DBPath     string
	OutputDir  string

	// Application configuration
	Command   string
	Port      string
	Interval  time.Duration
	UserAgent string
	Timezone  string

	// Logging
	LogFormat  string
	LogFile    string
	LogMaxSize int
	Debug      bool

	Version string
}
