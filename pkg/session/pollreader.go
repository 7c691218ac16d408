package session

import (
	"net"
	"time"
)

// pollReader reads from conn with a short deadline on every attempt so that
// a blocked read notices a stop request. Timeouts are retried until idle
// elapses without any data; idle <= 0 waits indefinitely.
type pollReader struct {
	conn    net.Conn
	poll    time.Duration
	idle    time.Duration
	stopped func() bool
}

func (r *pollReader) Read(b []byte) (int, error) {
	var waited time.Duration
	for {
		if r.stopped() {
			return 0, ErrStopped
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(r.poll)); err != nil {
			return 0, err
		}
		n, err := r.conn.Read(b)
		if err == nil || (n > 0 && isTimeout(err)) {
			return n, nil
		}
		if !isTimeout(err) {
			return n, err
		}
		waited += r.poll
		if r.idle > 0 && waited >= r.idle {
			return 0, ErrTimeout
		}
	}
}
