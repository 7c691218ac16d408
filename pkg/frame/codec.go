package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EncodeConfig serializes the session preamble.
func EncodeConfig(intervalMS uint32, mode Mode) []byte {
	body := fmt.Sprintf("INTERVAL:%d\nMODE:%s\n", intervalMS, mode)
	buf := make([]byte, ConfigLenBytes+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[ConfigLenBytes:], body)
	return buf
}

// EncodeSource serializes a named payload.
func EncodeSource(name string, content []byte) []byte {
	buf := make([]byte, NameLenBytes+len(name)+ContentLenBytes+len(content))
	binary.BigEndian.PutUint32(buf, uint32(len(name)))
	off := NameLenBytes
	off += copy(buf[off:], name)
	binary.BigEndian.PutUint64(buf[off:], uint64(len(content)))
	off += ContentLenBytes
	copy(buf[off:], content)
	return buf
}

// EncodeControl serializes a control sentinel. freq is only used by
// ControlNoFileFound.
func EncodeControl(tag ControlTag, freq string) []byte {
	return EncodeSource(ControlName(tag, freq), nil)
}

// ParseConfig parses a config body. Unknown keys are ignored. The literal
// two-character sequence `\n` is accepted as a line separator as well.
func ParseConfig(body []byte) (Config, error) {
	cfg := Config{Mode: ModeInterval}
	text := strings.ReplaceAll(string(body), `\n`, "\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "INTERVAL":
			n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
			if err != nil {
				return Config{}, protocolErrorf("config", err, "bad INTERVAL %q", value)
			}
			cfg.IntervalMS = uint32(n)
		case "MODE":
			m, err := ParseMode(value)
			if err != nil {
				return Config{}, protocolErrorf("config", err, "bad MODE")
			}
			cfg.Mode = m
		}
	}
	return cfg, nil
}

// Encoder writes frames to an underlying stream. Each frame is written with a
// single Write call.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) write(buf []byte) (int, error) {
	n, err := e.w.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	return n, err
}

// WriteConfig sends the session preamble and returns the bytes written.
func (e *Encoder) WriteConfig(cfg Config) (int, error) {
	return e.write(EncodeConfig(cfg.IntervalMS, cfg.Mode))
}

// WriteSource sends one named payload.
func (e *Encoder) WriteSource(name string, content []byte) (int, error) {
	return e.write(EncodeSource(name, content))
}

// WriteControl sends a control sentinel.
func (e *Encoder) WriteControl(tag ControlTag, freq string) (int, error) {
	return e.write(EncodeControl(tag, freq))
}
