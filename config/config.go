// Package config loads host settings from defaults, an optional JSON or
// YAML file, SCARA_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"scara/host/serial"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "SCARA"

// ArmConfig holds the arm geometry in millimeters
type ArmConfig struct {
	Link1 float64 `json:"link1" mapstructure:"link1"`
	Link2 float64 `json:"link2" mapstructure:"link2"`
}

// SerialConfig holds the controller link settings
type SerialConfig struct {
	Device      string        `json:"device" mapstructure:"device"`
	Driver      string        `json:"driver" mapstructure:"driver"`
	Baud        int           `json:"baud" mapstructure:"baud"`
	ReadTimeout time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	Settle      time.Duration `json:"settle" mapstructure:"settle"`
}

// PlaybackConfig holds playback settings
type PlaybackConfig struct {
	Delay time.Duration `json:"delay" mapstructure:"delay"`
}

// JournalConfig holds the command journal settings. An empty path disables it.
type JournalConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Config is the complete host configuration
type Config struct {
	Arm      ArmConfig      `json:"arm" mapstructure:"arm"`
	Serial   SerialConfig   `json:"serial" mapstructure:"serial"`
	Playback PlaybackConfig `json:"playback" mapstructure:"playback"`
	Journal  JournalConfig  `json:"journal" mapstructure:"journal"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
}

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"link1":      "arm.link1",
	"link2":      "arm.link2",
	"device":     "serial.device",
	"driver":     "serial.driver",
	"baud":       "serial.baud",
	"settle":     "serial.settle",
	"delay":      "playback.delay",
	"journal":    "journal.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arm.link1", 290.0)
	v.SetDefault("arm.link2", 180.0)

	v.SetDefault("serial.device", "/dev/ttyACM0")
	v.SetDefault("serial.driver", serial.DriverTarm)
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.readTimeout", "1s")
	v.SetDefault("serial.settle", "2s")

	v.SetDefault("playback.delay", "15s")

	v.SetDefault("journal.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// RegisterFlags adds the host flags to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file (JSON or YAML)")
	fs.Float64("link1", 290, "Upper arm length in mm")
	fs.Float64("link2", 180, "Forearm length in mm")
	fs.StringP("device", "d", "/dev/ttyACM0", "Serial device")
	fs.String("driver", serial.DriverTarm, "Serial driver (tarm, bugst, sim)")
	fs.IntP("baud", "b", 9600, "Baud rate")
	fs.Duration("settle", 2*time.Second, "Delay after opening the port before the first command")
	fs.Duration("delay", 15*time.Second, "Delay between playback targets")
	fs.String("journal", "", "SQLite command journal path (empty disables)")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "console", "Log format (console, json)")
}

// Load builds the configuration. fs may be nil; when it carries a
// "config" flag that file is read, and any flags the user set override
// every other source.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := ""
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the components cannot recover from
func (c *Config) Validate() error {
	var errs []error
	if !positive(c.Arm.Link1) {
		errs = append(errs, fmt.Errorf("arm.link1 must be a positive length, got %v", c.Arm.Link1))
	}
	if !positive(c.Arm.Link2) {
		errs = append(errs, fmt.Errorf("arm.link2 must be a positive length, got %v", c.Arm.Link2))
	}
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is required"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Serial.Settle < 0 {
		errs = append(errs, fmt.Errorf("serial.settle must not be negative, got %s", c.Serial.Settle))
	}
	if c.Playback.Delay < 0 {
		errs = append(errs, fmt.Errorf("playback.delay must not be negative, got %s", c.Playback.Delay))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SerialPort returns the port settings for serial.Open
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Driver:      c.Serial.Driver,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
