package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/adcstream/pkg/logging"
	"github.com/adcstream/pkg/metrics"
	"github.com/rs/zerolog"
)

//go:embed templates/*
var templatesFS embed.FS

// sizeFlag custom type to handle units like KB, MB, GB
type sizeFlag int

func (s *sizeFlag) String() string {
	return fmt.Sprintf("%d", *s)
}

func (s *sizeFlag) Set(value string) error {
	value = strings.TrimSpace(strings.ToUpper(value))
	multiplier := 1

	if strings.HasSuffix(value, "GB") {
		multiplier = 1024 * 1024 * 1024
		value = strings.TrimSuffix(value, "GB")
	} else if strings.HasSuffix(value, "MB") {
		multiplier = 1024 * 1024
		value = strings.TrimSuffix(value, "MB")
	} else if strings.HasSuffix(value, "KB") {
		multiplier = 1024
		value = strings.TrimSuffix(value, "KB")
	} else if strings.HasSuffix(value, "B") {
		value = strings.TrimSuffix(value, "B")
	}

	val, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid size format: %s", value)
	}

	*s = sizeFlag(val * multiplier)
	return nil
}

type role int

const (
	roleProducer role = iota
	roleConsumer
)

// options is the parsed command line.
type options struct {
	cfg  Config
	role role
	sim  bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	opts := options{cfg: defaultConfig()}
	if path := configPath(args); path != "" {
		if err := loadConfig(path, &opts.cfg); err != nil {
			return opts, err
		}
	}
	cfg := &opts.cfg

	fs := flag.NewFlagSet("adcstream", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.String("config", "", "YAML config file; flags override its values")
	isProducer := fs.Bool("producer", false, "Serve ADC source files to one consumer (default)")
	isConsumer := fs.Bool("consumer", false, "Connect to a producer and filter the stream")
	fs.BoolVar(&opts.sim, "sim", false, "Generate synthetic source files into -dir, then produce")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human readable console logs")

	// Producer flags
	fs.StringVar(&cfg.Producer.Mode, "mode", cfg.Producer.Mode, "Source selection: interval, freq or select_file")
	fs.UintVar(&cfg.Producer.IntervalMS, "interval", cfg.Producer.IntervalMS, "Milliseconds between source frames (interval mode)")
	fs.StringVar(&cfg.Producer.Frequency, "freq", cfg.Producer.Frequency, "Frequency tag to send (freq mode)")
	fs.StringVar(&cfg.Producer.File, "file", cfg.Producer.File, "Source file to send (select_file mode)")
	fs.StringVar(&cfg.Producer.Dir, "dir", cfg.Producer.Dir, "Folder holding the .txt source files")
	fs.BoolVar(&cfg.Producer.Repeat, "repeat", cfg.Producer.Repeat, "Keep serving new consumers after a session ends")

	// Consumer flags
	fs.StringVar(&cfg.Consumer.Reports, "reports", cfg.Consumer.Reports, "Folder for per-source parquet reports (empty disables)")
	fs.IntVar(&cfg.Consumer.Window, "window", cfg.Consumer.Window, "Sliding window size in samples")
	fs.IntVar(&cfg.Consumer.MinHistory, "min-history", cfg.Consumer.MinHistory, "Samples required before filtering starts")
	fs.IntVar(&cfg.Consumer.Queue, "queue", cfg.Consumer.Queue, "Batches buffered between transport and pipeline")
	fs.DurationVar(&cfg.Consumer.Pace, "pace", cfg.Consumer.Pace, "Delay between emitted samples for live playback")
	fs.DurationVar(&cfg.Consumer.Idle, "idle-timeout", cfg.Consumer.Idle, "Give up when the producer is silent this long")

	maxFrame := sizeFlag(0)
	if cfg.Consumer.MaxFrame != "" {
		if err := maxFrame.Set(cfg.Consumer.MaxFrame); err != nil {
			return opts, fmt.Errorf("config: max_frame: %w", err)
		}
	}
	fs.Var(&maxFrame, "max-frame", "Largest accepted source payload (e.g., 64MB, 1GB)")

	// Shared
	addr := fs.String("addr", "", "Listen address (producer, default :9999) or producer address (consumer, default 127.0.0.1:9999)")
	httpAddr := fs.String("http", "", "HTTP address for the live view and /metrics (consumer default :8080)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage of adcstream:\n")
		fmt.Fprintln(stderr, "  Producer: adcstream [-producer] -mode interval -dir adc_data")
		fmt.Fprintln(stderr, "  Consumer: adcstream -consumer -addr host:9999")
		fmt.Fprintln(stderr, "  Sim:      adcstream -sim [producer options]")
		fmt.Fprintln(stderr, "\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if *isProducer && *isConsumer {
		return opts, errors.New("-producer and -consumer are mutually exclusive")
	}
	if *isConsumer {
		opts.role = roleConsumer
		if opts.sim {
			return opts, errors.New("-sim only applies to the producer")
		}
	}
	if maxFrame > 0 {
		cfg.Consumer.MaxFrame = maxFrame.String()
	}
	if *addr != "" {
		cfg.Producer.Addr = *addr
		cfg.Consumer.Addr = *addr
	}
	if *httpAddr != "" {
		cfg.Producer.HTTP = *httpAddr
		cfg.Consumer.HTTP = *httpAddr
	}
	if _, err := cfg.Producer.mode(); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(opts.cfg.LogLevel, opts.cfg.LogPretty)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, log); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, log zerolog.Logger) error {
	m := metrics.New()
	if opts.role == roleConsumer {
		return runConsumer(ctx, opts.cfg, log, m)
	}
	if opts.sim {
		files, err := RunSimulator(opts.cfg.Producer.Dir, uint32(opts.cfg.Producer.IntervalMS), opts.cfg.Sim)
		if err != nil {
			return err
		}
		log.Info().Str("dir", opts.cfg.Producer.Dir).Strs("files", files).Msg("simulated sources written")
	}
	return runProducer(ctx, opts.cfg, log, m)
}
