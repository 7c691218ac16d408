// Package session runs the two ends of a stream: the producer, which
// listens for one peer at a time and sends the selected sources, and the
// consumer, which receives them and feeds the pipeline.
//
// Both ends poll a cooperative stop flag between bounded-time blocking
// calls, so a stop request is observed within one timeout interval.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrStopped is returned when a session ends because Stop was called.
	ErrStopped = errors.New("session: stopped")
	// ErrTimeout reports an I/O wait that exceeded its limit.
	ErrTimeout = fmt.Errorf("session: timed out: %w", os.ErrDeadlineExceeded)
)

// Defaults for the bounded waits.
const (
	DefaultAcceptTimeout = time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultDialTimeout   = 5 * time.Second
	DefaultConfigTimeout = 5 * time.Second
	DefaultPollInterval  = 50 * time.Millisecond
	DefaultIdleTimeout   = 60 * time.Second
)

// State is the producer lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateAwaitingPeer
	StateConnected
	StateStreaming
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type options struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	readFile func(string) ([]byte, error)
	onStart  func(id string)
	onConfig func(frame.Config)
}

func defaultOptions() options {
	return options{
		log:      zerolog.Nop(),
		readFile: os.ReadFile,
		onStart:  func(string) {},
		onConfig: func(frame.Config) {},
	}
}

// Option configures a Producer or Consumer.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReadFile replaces the reader used for an explicitly selected file.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.readFile = fn
		}
	}
}

// WithSessionStart registers fn to run with the session id before a
// consumer session dials.
func WithSessionStart(fn func(id string)) Option {
	return func(o *options) {
		if fn != nil {
			o.onStart = fn
		}
	}
}

// WithConfigReceived registers fn to run once the consumer has decoded the
// producer's config frame.
func WithConfigReceived(fn func(frame.Config)) Option {
	return func(o *options) {
		if fn != nil {
			o.onConfig = fn
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
