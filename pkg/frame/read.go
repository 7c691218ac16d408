package frame

import (
	"errors"
	"io"
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// ReadExact reads exactly n bytes from r. A single Read is never assumed to
// fill the request; short reads are accumulated until n bytes arrive or r
// reports closure.
//
// Closure before any byte arrives yields ErrConnectionClosed. Closure after a
// partial read yields a *ProtocolError. Any other read error is returned as
// is, after the bytes already read have been discarded.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	return readField(r, n, "stream")
}

func readField(r io.Reader, n int, field string) ([]byte, error) {
	if n < 0 {
		return nil, protocolErrorf(field, nil, "negative length %d", n)
	}
	data := make([]byte, n)
	if n == 0 {
		return data, nil
	}

	totalRead := 0
	empty := 0
	for totalRead < n {
		got, err := r.Read(data[totalRead:])
		if got > 0 {
			totalRead += got
			empty = 0
		}
		if err == nil {
			if got == 0 {
				empty++
				if empty >= maxEmptyReads {
					return nil, io.ErrNoProgress
				}
			}
			continue
		}
		if totalRead == n {
			break
		}
		if errors.Is(err, io.EOF) {
			if totalRead == 0 {
				return nil, ErrConnectionClosed
			}
			return nil, protocolErrorf(field, io.ErrUnexpectedEOF,
				"stream closed after %d of %d bytes", totalRead, n)
		}
		return nil, err
	}
	return data, nil
}
