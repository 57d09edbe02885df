package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultEnvPrefix  = "ASUSFANCTL"
	defaultConfigPath = "/etc/asusfanctl.toml"
)

type ErrorLogConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Interval     int            `mapstructure:"interval"`
	Setpoint     int            `mapstructure:"setpoint"`
	MaxRatedRPM  int            `mapstructure:"max_rated_rpm"`
	RateLimit    float64        `mapstructure:"rate_limit"`
	SettleDelay  int            `mapstructure:"settle_delay"`
	AutoInterval int            `mapstructure:"auto_interval"`
	LogLevel     LogLevel       `mapstructure:"log_level"`
	LogTicks     bool           `mapstructure:"log_ticks"`
	DLLPath      string         `mapstructure:"dll_path"`
	ErrorLog     ErrorLogConfig `mapstructure:"error_log"`
	Metrics      MetricsConfig  `mapstructure:"metrics"`
	PIDFile      bool           `mapstructure:"pid_file"`

	// Set from flags only.
	Mode       Mode   `mapstructure:"-"`
	Duty       int    `mapstructure:"-"`
	ConfigFile string `mapstructure:"-"`
}

var defaults = map[string]any{
	"interval":          1,
	"setpoint":          60,
	"max_rated_rpm":     5000,
	"rate_limit":        2.0,
	"settle_delay":      1,
	"auto_interval":     0,
	"log_level":         string(LogLevelInfo),
	"log_ticks":         false,
	"dll_path":          "AsusWinIO64.dll",
	"error_log.backend": "file",
	"error_log.path":    "error_log.txt",
	"metrics.listen":    "",
	"pid_file":          true,
}

// flag name -> config key
var flagKeys = map[string]string{
	"interval":          "interval",
	"setpoint":          "setpoint",
	"max-rated-rpm":     "max_rated_rpm",
	"rate-limit":        "rate_limit",
	"settle-delay":      "settle_delay",
	"auto-interval":     "auto_interval",
	"log-level":         "log_level",
	"log-ticks":         "log_ticks",
	"dll-path":          "dll_path",
	"error-log-backend": "error_log.backend",
	"error-log-path":    "error_log.path",
	"metrics-listen":    "metrics.listen",
	"pid-file":          "pid_file",
}

// Load builds the configuration from flags, ASUSFANCTL_* environment
// variables, the TOML config file and defaults, in that order of precedence.
// args excludes the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, explicit := configPath(fs, o)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !os.IsNotExist(unwrapPathError(err)) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
			path = ""
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.ConfigFile = path
	cfg.LogLevel = LogLevel(strings.ToLower(string(cfg.LogLevel)))
	if cfg.LogLevel == "warn" {
		cfg.LogLevel = LogLevelWarning
	}

	mode, duty, err := modeFromFlags(fs)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	cfg.Duty = duty

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("asusfanctl", pflag.ContinueOnError)

	fs.String("config", "", "Path to the TOML configuration file")
	fs.Int("interval", 1, "Monitor interval in seconds")
	fs.Int("setpoint", 60, "Target temperature in °C for automatic control")
	fs.Int("max-rated-rpm", 5000, "Fan RPM reported as 100% speed")
	fs.Float64("rate-limit", 2, "Temperature change per interval treated as a spike")
	fs.Int("settle-delay", 1, "Seconds to wait after a temperature spike")
	fs.Int("auto-interval", 0, "Seconds between automatic adjustments (0 = adjust once)")
	fs.String("log-level", string(LogLevelInfo), "Log level (debug, info, warning, error)")
	fs.Bool("log-ticks", false, "Log every monitor tick at info level")
	fs.String("dll-path", "AsusWinIO64.dll", "Path to the ASUS WinIO driver DLL")
	fs.String("error-log-backend", "file", "Error log backend (file, sqlite, none)")
	fs.String("error-log-path", "error_log.txt", "Error log file or database path")
	fs.String("metrics-listen", "", "Address for the Prometheus endpoint (empty disables)")
	fs.Bool("pid-file", true, "Refuse to start when another instance is running")

	fs.Bool("monitor", false, "Monitor temperatures and fan speeds (default)")
	fs.Int("duty", -1, "Set all fans to this duty percentage, then monitor")
	fs.Bool("auto", false, "Adjust fan duty from temperature")
	fs.Bool("test", false, "Run the fan test routine and exit")
	fs.Bool("reset", false, "Return all fans to automatic mode and exit")

	return fs
}

func configPath(fs *pflag.FlagSet, o *options) (string, bool) {
	if p, _ := fs.GetString("config"); p != "" {
		return p, true
	}
	if o.configPath != "" {
		return o.configPath, true
	}
	if p, ok := o.lookupEnv(o.envPrefix + "_CONFIG"); ok {
		return p, p != ""
	}
	return defaultConfigPath, false
}

func unwrapPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr
	}
	return err
}

func modeFromFlags(fs *pflag.FlagSet) (Mode, int, error) {
	var modes []Mode
	for _, m := range []Mode{ModeMonitor, ModeAuto, ModeTest, ModeReset} {
		if on, _ := fs.GetBool(string(m)); on {
			modes = append(modes, m)
		}
	}

	duty := -1
	if fs.Changed("duty") {
		duty, _ = fs.GetInt("duty")
		modes = append(modes, ModeDuty)
	}

	switch len(modes) {
	case 0:
		return ModeMonitor, duty, nil
	case 1:
		return modes[0], duty, nil
	default:
		return "", 0, errors.New().Wrap(errors.ErrInvalidConfig, &fieldError{
			field: "mode", value: modes, reason: "mode flags are mutually exclusive",
		})
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.Wrap(errors.ErrInvalidInterval, &fieldError{"interval", c.Interval, "must be positive"})
	}
	if !c.LogLevel.IsValid() {
		return errFactory.Wrap(errors.ErrInvalidLogLevel, &fieldError{"log_level", c.LogLevel, "unknown level"})
	}

	var fe *fieldError
	switch {
	case c.MaxRatedRPM <= 0:
		fe = &fieldError{"max_rated_rpm", c.MaxRatedRPM, "must be positive"}
	case c.RateLimit <= 0:
		fe = &fieldError{"rate_limit", c.RateLimit, "must be positive"}
	case c.SettleDelay < 0:
		fe = &fieldError{"settle_delay", c.SettleDelay, "must not be negative"}
	case c.AutoInterval < 0:
		fe = &fieldError{"auto_interval", c.AutoInterval, "must not be negative"}
	case c.Mode == ModeDuty && (c.Duty < 0 || c.Duty > 100):
		fe = &fieldError{"duty", c.Duty, "must be within [0,100]"}
	case !validBackend(c.ErrorLog.Backend):
		fe = &fieldError{"error_log.backend", c.ErrorLog.Backend, "must be file, sqlite or none"}
	case c.ErrorLog.Backend != "none" && c.ErrorLog.Path == "":
		fe = &fieldError{"error_log.path", c.ErrorLog.Path, "required by the error log backend"}
	}
	if fe != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, fe)
	}

	return nil
}

func validBackend(b string) bool {
	switch b {
	case "file", "sqlite", "none":
		return true
	default:
		return false
	}
}

func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c *Config) SettleDuration() time.Duration {
	return time.Duration(c.SettleDelay) * time.Second
}

func (c *Config) AutoIntervalDuration() time.Duration {
	return time.Duration(c.AutoInterval) * time.Second
}
