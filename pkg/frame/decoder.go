package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// Decoder reads frames from a stream.
type Decoder struct {
	r          io.Reader
	maxContent uint64
}

// DecoderOption customises a Decoder.
type DecoderOption func(*Decoder)

// WithMaxContent caps the accepted content length of a source frame.
func WithMaxContent(n uint64) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxContent = n
		}
	}
}

func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{r: r, maxContent: DefaultMaxContent}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// midFrame turns a clean closure inside a frame into a truncation error.
func midFrame(err error, field string) error {
	if errors.Is(err, ErrConnectionClosed) {
		return protocolErrorf(field, io.ErrUnexpectedEOF, "stream closed inside frame")
	}
	return err
}

// ReadConfig reads the config frame that opens every session.
func (d *Decoder) ReadConfig() (Frame, error) {
	lenBuf, err := readField(d.r, ConfigLenBytes, "config length")
	if err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > MaxConfigLen {
		return Frame{}, protocolErrorf("config length", nil, "implausible length %d", n)
	}
	body, err := readField(d.r, int(n), "config body")
	if err != nil {
		return Frame{}, midFrame(err, "config body")
	}
	cfg, err := ParseConfig(body)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindConfig, Config: cfg, Content: body}, nil
}

// Next reads one source or control frame. A clean closure before the first
// byte of a frame returns ErrConnectionClosed.
func (d *Decoder) Next() (Frame, error) {
	lenBuf, err := readField(d.r, NameLenBytes, "name length")
	if err != nil {
		return Frame{}, err
	}
	nameLen := binary.BigEndian.Uint32(lenBuf)
	if nameLen > MaxNameLen {
		return Frame{}, protocolErrorf("name length", nil, "implausible length %d", nameLen)
	}
	nameBuf, err := readField(d.r, int(nameLen), "name")
	if err != nil {
		return Frame{}, midFrame(err, "name")
	}
	name := string(nameBuf)

	lenBuf, err = readField(d.r, ContentLenBytes, "content length")
	if err != nil {
		return Frame{}, midFrame(err, "content length")
	}
	contentLen := binary.BigEndian.Uint64(lenBuf)

	if tag, freq, ok := classifyName(name); ok {
		if contentLen != 0 {
			return Frame{}, protocolErrorf("content length", nil,
				"control frame %s carries %d content bytes", name, contentLen)
		}
		return Frame{Kind: KindControl, Name: name, Control: tag, Frequency: freq}, nil
	}

	if contentLen > d.maxContent {
		return Frame{}, protocolErrorf("content length", nil,
			"implausible length %d (max %d)", contentLen, d.maxContent)
	}
	content, err := readField(d.r, int(contentLen), "content")
	if err != nil {
		return Frame{}, midFrame(err, "content")
	}
	return Frame{Kind: KindSource, Name: name, Content: content}, nil
}
