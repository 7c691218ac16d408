// Command framedump connects to a producer as a consumer would and prints
// every frame it receives without processing the samples.
package main

import (
	"errors"
	"flag"
	"net"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/logging"
	"github.com/adcstream/pkg/source"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "Producer address")
	timeout := flag.Duration("timeout", time.Minute, "Give up when no frame arrives for this long")
	flag.Parse()

	log := logging.New("info", true)

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	dec := frame.NewDecoder(conn)
	conn.SetReadDeadline(time.Now().Add(*timeout))
	cf, err := dec.ReadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("read config")
	}
	log.Info().Stringer("mode", cf.Config.Mode).Uint32("interval_ms", cf.Config.IntervalMS).Msg("config")

	for {
		conn.SetReadDeadline(time.Now().Add(*timeout))
		f, err := dec.Next()
		if err != nil {
			if errors.Is(err, frame.ErrConnectionClosed) {
				log.Warn().Msg("connection closed without a control frame")
				return
			}
			log.Fatal().Err(err).Msg("read frame")
		}

		if f.Kind == frame.KindControl {
			log.Info().Str("control", f.Name).Stringer("tag", f.Control).Msg("control")
			return
		}

		samples, skipped := source.ParseSamples(f.Content)
		ev := log.Info().Str("name", f.Name).Int("bytes", len(f.Content)).Int("samples", len(samples)).Int("skipped", skipped)
		if len(samples) > 0 {
			ev = ev.Int64("first", samples[0]).Int64("last", samples[len(samples)-1])
		}
		ev.Msg("source")
	}
}
