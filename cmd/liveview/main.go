// Command liveview follows a consumer's live view websocket and logs what
// it reports until the session ends.
package main

import (
	"flag"
	"net/url"
	"os"

	"github.com/adcstream/pkg/logging"
	"github.com/gorilla/websocket"
)

func main() {
	host := flag.String("host", "localhost:8080", "Consumer HTTP address")
	samples := flag.Bool("samples", false, "Log every sample pair")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logging.New(*level, true)

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("dial")
	}
	defer c.Close()
	log.Info().Str("url", u.String()).Msg("connected")

	for {
		var msg map[string]interface{}
		if err := c.ReadJSON(&msg); err != nil {
			log.Info().Err(err).Msg("connection closed")
			return
		}

		switch msg["type"] {
		case "sample":
			if *samples {
				log.Info().Interface("source", msg["source"]).Interface("index", msg["index"]).
					Interface("weight", msg["weight"]).Interface("filtered", msg["filtered"]).Msg("sample")
			}
		case "status":
			log.Info().Interface("text", msg["text"]).Msg("status")
		case "source_start":
			log.Info().Interface("source", msg["source"]).Interface("samples", msg["samples"]).Msg("source started")
		case "source_done":
			log.Info().Interface("source", msg["source"]).Interface("cutoff_hz", msg["cutoff_hz"]).
				Interface("raw_amplitude", msg["raw_amplitude"]).
				Interface("filtered_amplitude", msg["filtered_amplitude"]).Msg("source done")
		case "terminal":
			log.Info().Interface("status", msg["status"]).Interface("message", msg["message"]).Msg("session ended")
			if msg["status"] != "finished" {
				os.Exit(1)
			}
			return
		default:
			log.Debug().Interface("msg", msg).Msg("message")
		}
	}
}
