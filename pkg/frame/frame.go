// Package frame implements the length-prefixed wire format shared by the
// producer and the consumer: one config frame, then any number of source
// frames, terminated by a control frame.
package frame

import (
	"fmt"
	"strings"
)

// Field widths of the length prefixes, in bytes.
const (
	ConfigLenBytes  = 4
	NameLenBytes    = 4
	ContentLenBytes = 8
)

// Limits applied by the decoder. A prefix above the limit is treated as a
// corrupt stream rather than an allocation request.
const (
	MaxConfigLen      = 64 * 1024
	MaxNameLen        = 4 * 1024
	DefaultMaxContent = 256 * 1024 * 1024
)

// Reserved names carried by control frames.
const (
	NameEndOfTransmission = "END_OF_TRANSMISSION"
	NameNoFileFound       = "NO_FILE_FOUND"
	NameNoFileSelected    = "NO_FILE_SELECTED"
	NameNoSources         = "NO_FILES_IN_FOLDER"
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindConfig Kind = iota
	KindSource
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindSource:
		return "source"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Mode selects which source frames the producer emits.
type Mode int

const (
	ModeInterval Mode = iota
	ModeFrequency
	ModeSelectFile
)

func (m Mode) String() string {
	switch m {
	case ModeInterval:
		return "interval"
	case ModeFrequency:
		return "freq"
	case ModeSelectFile:
		return "select_file"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	return m == ModeInterval || m == ModeFrequency || m == ModeSelectFile
}

// ParseMode maps the wire spelling of a mode back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.TrimSpace(s) {
	case "interval":
		return ModeInterval, nil
	case "freq":
		return ModeFrequency, nil
	case "select_file":
		return ModeSelectFile, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// ControlTag identifies the reserved name of a control frame.
type ControlTag int

const (
	ControlEndOfTransmission ControlTag = iota
	ControlNoFileFound
	ControlNoFileSelected
	ControlNoSources
)

func (t ControlTag) String() string {
	switch t {
	case ControlEndOfTransmission:
		return NameEndOfTransmission
	case ControlNoFileFound:
		return NameNoFileFound
	case ControlNoFileSelected:
		return NameNoFileSelected
	case ControlNoSources:
		return NameNoSources
	default:
		return fmt.Sprintf("control(%d)", int(t))
	}
}

// ControlName returns the on-wire name for a control tag. Only
// ControlNoFileFound carries the requested frequency.
func ControlName(tag ControlTag, freq string) string {
	if tag == ControlNoFileFound {
		return NameNoFileFound + ":" + freq
	}
	return tag.String()
}

// classifyName reports whether name is reserved and, if so, which control it
// encodes.
func classifyName(name string) (ControlTag, string, bool) {
	switch {
	case name == NameEndOfTransmission:
		return ControlEndOfTransmission, "", true
	case name == NameNoFileSelected:
		return ControlNoFileSelected, "", true
	case name == NameNoSources:
		return ControlNoSources, "", true
	case strings.HasPrefix(name, NameNoFileFound+":"):
		return ControlNoFileFound, strings.TrimPrefix(name, NameNoFileFound+":"), true
	}
	return 0, "", false
}

// Config is the session preamble sent by the producer.
type Config struct {
	IntervalMS uint32
	Mode       Mode
}

// Frame is one decoded message.
type Frame struct {
	Kind Kind

	// KindConfig
	Config Config

	// KindSource and KindControl
	Name    string
	Content []byte

	// KindControl
	Control   ControlTag
	Frequency string
}

// IsEnd reports whether f terminates the stream.
func (f Frame) IsEnd() bool {
	return f.Kind == KindControl
}
