package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/logging"
	"github.com/adcstream/pkg/pipeline"
	"github.com/adcstream/pkg/queue"
	"github.com/adcstream/pkg/sink"
	"github.com/adcstream/pkg/source"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConsumerConfig configures a Consumer. Zero values select defaults.
type ConsumerConfig struct {
	Addr string

	DialTimeout   time.Duration
	ConfigTimeout time.Duration
	PollInterval  time.Duration
	// IdleTimeout ends the session when no byte arrives for this long.
	// Negative disables it.
	IdleTimeout time.Duration

	// MaxContent caps a single source payload. Zero uses the frame default.
	MaxContent uint64
	// QueueSize bounds the batches waiting for the pipeline.
	QueueSize int

	Pipeline pipeline.Config
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ConfigTimeout <= 0 {
		c.ConfigTimeout = DefaultConfigTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = queue.DefaultCapacity
	}
	return c
}

// Consumer connects to a producer, decodes its frames and runs the
// pipeline on every received source. Transport and pipeline run on separate
// goroutines joined by a bounded queue.
type Consumer struct {
	cfg  ConsumerConfig
	sink sink.Sink
	opts options

	stop atomic.Bool

	mu     sync.Mutex
	id     string
	remote frame.Config
	cancel context.CancelFunc
}

func NewConsumer(cfg ConsumerConfig, s sink.Sink, opts ...Option) *Consumer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Consumer{cfg: cfg.withDefaults(), sink: s, opts: o}
}

// Stop ends the session. Pending reads return within one poll interval and
// the pipeline worker abandons its current batch.
func (c *Consumer) Stop() {
	c.stop.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ID returns the session id of the current or last run.
func (c *Consumer) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Remote returns the config frame received from the producer.
func (c *Consumer) Remote() frame.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Run performs one session and reports its terminal status to the sink
// after the pipeline has drained. The terminal status is also returned.
func (c *Consumer) Run(ctx context.Context) sink.Terminal {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.NewString()
	c.mu.Lock()
	c.id = id
	c.cancel = cancel
	c.mu.Unlock()
	if c.stop.Load() {
		cancel()
	}

	c.opts.onStart(id)
	log := logging.Session(c.opts.log, id)
	term := c.run(ctx, log)

	c.opts.metrics.SessionEnded("consumer", term.Status.String())
	c.sink.ReportTerminal(term)
	return term
}

func (c *Consumer) run(ctx context.Context, log zerolog.Logger) sink.Terminal {
	p, err := pipeline.New(c.cfg.Pipeline, c.sink,
		pipeline.WithMetrics(c.opts.metrics), pipeline.WithLogger(log))
	if err != nil {
		return sink.Terminal{Status: sink.Error, Err: err}
	}

	c.sink.ReportStatus("connecting to " + c.cfg.Addr)
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		if c.stop.Load() {
			return sink.Terminal{Status: sink.Stopped}
		}
		return sink.Terminal{Status: sink.Error, Err: fmt.Errorf("consumer: dial %s: %w", c.cfg.Addr, err)}
	}
	defer conn.Close()
	log.Info().Str("addr", c.cfg.Addr).Msg("connected to producer")

	q := queue.New[pipeline.Batch](c.cfg.QueueSize, queue.WithDepthObserver(c.opts.metrics.QueueDepth))

	var wg sync.WaitGroup
	var workerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		workerErr = p.Run(ctx, q, c.cfg.PollInterval)
	}()

	term := c.receive(ctx, conn, q, log)
	q.Close()
	wg.Wait()

	if term.Status != sink.Error && term.Status != sink.Stopped && workerErr != nil {
		if c.stop.Load() {
			return sink.Terminal{Status: sink.Stopped}
		}
		return sink.Terminal{Status: sink.Error, Err: fmt.Errorf("consumer: pipeline: %w", workerErr)}
	}
	return term
}

// receive reads the config frame and then every following frame, pushing
// source batches onto q until a control frame or an error ends the stream.
func (c *Consumer) receive(ctx context.Context, conn net.Conn, q *queue.Bounded[pipeline.Batch], log zerolog.Logger) sink.Terminal {
	stopped := func() bool { return c.stop.Load() || ctx.Err() != nil }

	r := &pollReader{conn: conn, poll: c.cfg.PollInterval, idle: c.cfg.ConfigTimeout, stopped: stopped}
	dec := frame.NewDecoder(r, frame.WithMaxContent(c.cfg.MaxContent))

	cf, err := dec.ReadConfig()
	if err != nil {
		return c.failure(err, "read config")
	}
	c.opts.metrics.FrameReceived(frame.KindConfig.String())
	c.mu.Lock()
	c.remote = cf.Config
	c.mu.Unlock()
	c.opts.onConfig(cf.Config)
	log.Info().Stringer("mode", cf.Config.Mode).Uint32("interval_ms", cf.Config.IntervalMS).Msg("config received")
	c.sink.ReportStatus(fmt.Sprintf("mode %s, interval %d ms", cf.Config.Mode, cf.Config.IntervalMS))

	if c.cfg.IdleTimeout > 0 {
		r.idle = c.cfg.IdleTimeout
	} else {
		r.idle = 0
	}

	for {
		f, err := dec.Next()
		if err != nil {
			if errors.Is(err, frame.ErrConnectionClosed) {
				return sink.Terminal{Status: sink.Error,
					Err: fmt.Errorf("consumer: connection closed before end of transmission: %w", err)}
			}
			return c.failure(err, "read frame")
		}
		c.opts.metrics.FrameReceived(f.Kind.String())

		if f.Kind == frame.KindControl {
			log.Info().Str("control", f.Name).Msg("control frame received")
			return controlTerminal(f)
		}

		samples, skipped := source.ParseSamples(f.Content)
		c.opts.metrics.SourceBytes(len(f.Content))
		c.opts.metrics.LinesSkipped(skipped)
		if skipped > 0 {
			log.Warn().Str("source", f.Name).Int("skipped", skipped).Msg("unparsable sample lines skipped")
		}
		log.Debug().Str("source", f.Name).Int("samples", len(samples)).Msg("source received")
		c.sink.ReportStatus(fmt.Sprintf("received %s (%d samples)", f.Name, len(samples)))

		b := pipeline.Batch{Source: f.Name, Samples: samples, Skipped: skipped, IntervalMS: cf.Config.IntervalMS}
		if err := q.Push(ctx, b); err != nil {
			return c.failure(err, "queue batch")
		}
	}
}

func (c *Consumer) failure(err error, action string) sink.Terminal {
	if errors.Is(err, ErrStopped) || (c.stop.Load() && errors.Is(err, context.Canceled)) {
		return sink.Terminal{Status: sink.Stopped}
	}
	return sink.Terminal{Status: sink.Error, Err: fmt.Errorf("consumer: %s: %w", action, err)}
}

func controlTerminal(f frame.Frame) sink.Terminal {
	switch f.Control {
	case frame.ControlNoFileFound:
		return sink.Terminal{Status: sink.NoFileFound, Detail: f.Frequency}
	case frame.ControlNoFileSelected:
		return sink.Terminal{Status: sink.NoFileSelected}
	case frame.ControlNoSources:
		return sink.Terminal{Status: sink.NoSources}
	}
	return sink.Terminal{Status: sink.Finished}
}
