package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/metrics"
	"github.com/adcstream/pkg/pipeline"
	"github.com/adcstream/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConsumer(t *testing.T, c *Consumer) sink.Terminal {
	t.Helper()
	done := make(chan sink.Terminal, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case term := <-done:
		return term
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not finish")
	}
	return sink.Terminal{}
}

func TestIntervalScenarioEndToEnd(t *testing.T) {
	cat := threeSources()
	p, errc := startProducer(t, ProducerConfig{Mode: frame.ModeInterval, IntervalMS: 20}, cat)

	m := metrics.New()
	rec := sink.NewRecorder()
	c := NewConsumer(ConsumerConfig{Addr: p.Addr().String()}, rec, WithMetrics(m))
	term := runConsumer(t, c)

	assert.Equal(t, sink.Finished, term.Status)
	assert.NoError(t, term.Err)
	assert.Equal(t, frame.Config{IntervalMS: 20, Mode: frame.ModeInterval}, c.Remote())
	assert.NotEmpty(t, c.ID())

	assert.Equal(t, []string{"data_file_0.txt", "data_file_1.txt", "data_file_2.txt"}, rec.Sources())
	for _, name := range rec.Sources() {
		pairs := rec.Pairs(name)
		require.Len(t, pairs, 100)
		for i, pair := range pairs {
			assert.Equal(t, i, pair.Index)
			// fewer samples than the filter threshold
			assert.False(t, pair.Valid())
		}
	}
	require.Len(t, rec.Terminals(), 1)
	assert.Len(t, rec.Summaries(), 3)
	waitServe(t, errc)

	body := scrape(t, m)
	assert.Contains(t, body, `adcstream_consumer_frames_received_total{kind="source"} 3`)
	assert.Contains(t, body, "adcstream_pipeline_samples_processed_total 300")
	assert.Contains(t, body, `adcstream_sessions_total{role="consumer",status="finished"} 1`)
}

func TestConsumerFiltersLongSources(t *testing.T) {
	p, errc := startProducer(t, ProducerConfig{Mode: frame.ModeSelectFile, Selection: Selection{File: "long.txt"}},
		threeSources(), WithReadFile(func(string) ([]byte, error) { return adcContent(120, 2), nil }))
	rec := sink.NewRecorder()
	c := NewConsumer(ConsumerConfig{
		Addr:     p.Addr().String(),
		Pipeline: pipeline.Config{Window: 64, MinHistory: 64},
	}, rec)
	term := runConsumer(t, c)
	require.Equal(t, sink.Finished, term.Status)
	waitServe(t, errc)

	pairs := rec.Pairs("long.txt")
	require.Len(t, pairs, 120)
	for _, pair := range pairs[63:] {
		assert.True(t, pair.Valid(), "index %d", pair.Index)
	}
}

func TestFrequencyNoMatchScenario(t *testing.T) {
	p, errc := startProducer(t, ProducerConfig{
		Mode:      frame.ModeFrequency,
		Selection: Selection{Frequency: "50"},
	}, threeSources())

	rec := sink.NewRecorder()
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: p.Addr().String()}, rec))
	assert.Equal(t, sink.NoFileFound, term.Status)
	assert.Equal(t, "50", term.Detail)
	assert.Empty(t, rec.Sources(), "pipeline must not run")
	assert.Empty(t, rec.Summaries())
	waitServe(t, errc)
}

func TestNoFileSelectedScenario(t *testing.T) {
	p, errc := startProducer(t, ProducerConfig{Mode: frame.ModeSelectFile}, threeSources())
	rec := sink.NewRecorder()
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: p.Addr().String()}, rec))
	assert.Equal(t, sink.NoFileSelected, term.Status)
	assert.Equal(t, "no source file selected", term.Message())
	waitServe(t, errc)
}

func TestConsumerTruncatedStream(t *testing.T) {
	addr := fakeProducer(t, func(conn net.Conn) {
		conn.Write(frame.EncodeConfig(20, frame.ModeInterval))
		full := frame.EncodeSource("cut.txt", adcContent(10, 1))
		conn.Write(full[:len(full)-7])
	})

	rec := sink.NewRecorder()
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: addr}, rec))
	assert.Equal(t, sink.Error, term.Status)
	assert.True(t, frame.IsProtocolError(term.Err), "got %v", term.Err)
	assert.Empty(t, rec.Sources())
}

func TestConsumerClosedBeforeControl(t *testing.T) {
	addr := fakeProducer(t, func(conn net.Conn) {
		conn.Write(frame.EncodeConfig(20, frame.ModeInterval))
		conn.Write(frame.EncodeSource("only.txt", adcContent(10, 1)))
	})

	rec := sink.NewRecorder()
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: addr}, rec))
	assert.Equal(t, sink.Error, term.Status)
	assert.ErrorIs(t, term.Err, frame.ErrConnectionClosed)
	// the received source is still processed
	assert.Len(t, rec.Pairs("only.txt"), 10)
}

func TestConsumerSkipsBadLines(t *testing.T) {
	addr := fakeProducer(t, func(conn net.Conn) {
		conn.Write(frame.EncodeConfig(20, frame.ModeInterval))
		conn.Write(frame.EncodeSource("mixed.txt", []byte("ADC:1\nADC:x\nhello\nADC:3\n")))
		conn.Write(frame.EncodeControl(frame.ControlEndOfTransmission, ""))
	})

	rec := sink.NewRecorder()
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: addr}, rec))
	require.Equal(t, sink.Finished, term.Status)
	pairs := rec.Pairs("mixed.txt")
	require.Len(t, pairs, 2)
	assert.Equal(t, int64(3), pairs[1].Raw)
	require.Len(t, rec.Summaries(), 1)
	assert.Equal(t, 1, rec.Summaries()[0].SkippedLines)
}

func TestConsumerStop(t *testing.T) {
	addr := fakeProducer(t, func(conn net.Conn) {
		conn.Write(frame.EncodeConfig(20, frame.ModeInterval))
		time.Sleep(3 * time.Second)
	})

	rec := sink.NewRecorder()
	c := NewConsumer(ConsumerConfig{Addr: addr}, rec)
	done := make(chan sink.Terminal, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return c.Remote().IntervalMS == 20 }, 2*time.Second, 5*time.Millisecond)
	start := time.Now()
	c.Stop()

	select {
	case term := <-done:
		assert.Equal(t, sink.Stopped, term.Status)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer ignored stop")
	}
}

func TestConsumerConfigTimeout(t *testing.T) {
	addr := fakeProducer(t, func(net.Conn) {
		time.Sleep(time.Second)
	})

	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: addr, ConfigTimeout: 100 * time.Millisecond}, sink.NewRecorder()))
	assert.Equal(t, sink.Error, term.Status)
	assert.ErrorIs(t, term.Err, ErrTimeout)
}

func TestConsumerIdleTimeout(t *testing.T) {
	addr := fakeProducer(t, func(conn net.Conn) {
		conn.Write(frame.EncodeConfig(20, frame.ModeInterval))
		time.Sleep(time.Second)
	})

	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: addr, IdleTimeout: 150 * time.Millisecond}, sink.NewRecorder()))
	assert.Equal(t, sink.Error, term.Status)
	assert.ErrorIs(t, term.Err, ErrTimeout)
}

func TestConsumerDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	rec := sink.NewRecorder()
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: addr, DialTimeout: 200 * time.Millisecond}, rec))
	assert.Equal(t, sink.Error, term.Status)
	assert.Error(t, term.Err)
	require.Len(t, rec.Terminals(), 1)
}

func TestConsumerRejectsBadPipelineConfig(t *testing.T) {
	term := runConsumer(t, NewConsumer(ConsumerConfig{Addr: "127.0.0.1:1", Pipeline: pipeline.Config{Window: 8}}, sink.NewRecorder()))
	assert.Equal(t, sink.Error, term.Status)
}
