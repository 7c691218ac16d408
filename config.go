package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/pipeline"
	"github.com/adcstream/pkg/source"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. It can be loaded from a YAML
// file with -config; flags given on the command line take precedence.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Producer ProducerSettings `yaml:"producer"`
	Consumer ConsumerSettings `yaml:"consumer"`
	Sim      SimSettings      `yaml:"sim"`
}

type ProducerSettings struct {
	Addr       string `yaml:"addr"`
	Mode       string `yaml:"mode"`
	IntervalMS uint   `yaml:"interval_ms"`
	Frequency  string `yaml:"frequency"`
	File       string `yaml:"file"`
	Dir        string `yaml:"dir"`
	Repeat     bool   `yaml:"repeat"`
	HTTP       string `yaml:"http"`
}

type ConsumerSettings struct {
	Addr       string        `yaml:"addr"`
	HTTP       string        `yaml:"http"`
	Reports    string        `yaml:"reports"`
	Window     int           `yaml:"window"`
	MinHistory int           `yaml:"min_history"`
	Queue      int           `yaml:"queue"`
	Pace       time.Duration `yaml:"pace"`
	MaxFrame   string        `yaml:"max_frame"`
	Idle       time.Duration `yaml:"idle_timeout"`
}

type SimSettings struct {
	Files       int       `yaml:"files"`
	Samples     int       `yaml:"samples"`
	Frequencies []float64 `yaml:"frequencies"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Producer: ProducerSettings{
			Addr:       ":9999",
			Mode:       frame.ModeInterval.String(),
			IntervalMS: 20,
			Dir:        source.DefaultDir,
		},
		Consumer: ConsumerSettings{
			Addr:       "127.0.0.1:9999",
			HTTP:       ":8080",
			Reports:    "reports",
			Window:     pipeline.DefaultWindow,
			MinHistory: pipeline.DefaultMinHistory,
			Queue:      8,
			MaxFrame:   "256MB",
		},
		Sim: SimSettings{
			Files:       3,
			Samples:     600,
			Frequencies: []float64{0.5, 2, 5},
		},
	}
}

// loadConfig overlays the YAML file at path onto cfg.
func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// configPath finds -config in args before the flag set is built, so that
// file values can become flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// maxFrame parses the configured frame limit with sizeFlag units.
func (c ConsumerSettings) maxFrame() (uint64, error) {
	if c.MaxFrame == "" {
		return 0, nil
	}
	var s sizeFlag
	if err := s.Set(c.MaxFrame); err != nil {
		return 0, fmt.Errorf("config: max_frame: %w", err)
	}
	if s <= 0 {
		return 0, fmt.Errorf("config: max_frame must be positive, got %q", c.MaxFrame)
	}
	return uint64(s), nil
}

func (p ProducerSettings) mode() (frame.Mode, error) {
	return frame.ParseMode(p.Mode)
}
