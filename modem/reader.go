package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"i4.energy/across/celldial/at"
)

// Result is the outcome of one AT command: everything read until the
// terminal sentinel (or the deadline) and which sentinel ended it.
type Result struct {
	Text string
	Kind at.Terminal
}

// Contains reports whether the response text contains s.
func (r Result) Contains(s string) bool {
	return strings.Contains(r.Text, s)
}

// failure converts an unexpected result into a typed error for cmd.
func (r Result) failure(cmd string) error {
	switch r.Kind {
	case at.TermTimeout:
		return fmt.Errorf("%s: %w", cmd, ErrTimeout)
	default:
		return fmt.Errorf("%s: %w: %s %q", cmd, ErrProtocol, r.Kind, strings.TrimSpace(r.Text))
	}
}

// link owns the transport's read side. A single pump goroutine reads the
// transport and hands chunks over a channel, so that waiting for a response
// is a select on data, deadline and cancellation rather than a polling loop.
type link struct {
	transport Transport
	chunks    chan []byte
	done      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	err       error // valid once done is closed

	pending []byte
}

func newLink(t Transport) *link {
	l := &link{
		transport: t,
		chunks:    make(chan []byte, 64),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
	go l.pump()
	return l
}

func (l *link) pump() {
	defer close(l.done)
	buf := make([]byte, 512)
	for {
		n, err := l.transport.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case l.chunks <- chunk:
			case <-l.stop:
				l.err = ErrAlreadyClosed
				return
			}
		}
		if err != nil {
			l.err = err
			return
		}
	}
}

// closedErr describes why the pump stopped.
func (l *link) closedErr() error {
	if l.err == nil || errors.Is(l.err, io.EOF) || errors.Is(l.err, ErrAlreadyClosed) {
		return ErrAlreadyClosed
	}
	return fmt.Errorf("read: %w", l.err)
}

// next blocks until more inbound bytes are pending.
func (l *link) next(ctx context.Context, deadline <-chan time.Time) (bool, error) {
	select {
	case chunk := <-l.chunks:
		l.pending = chunk
		return true, nil
	case <-l.done:
		select {
		case chunk := <-l.chunks:
			l.pending = chunk
			return true, nil
		default:
			return false, l.closedErr()
		}
	case <-deadline:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// read accumulates inbound bytes until one of the sentinels completes or
// timeout elapses. A timeout is not an error: it yields TermTimeout with
// whatever arrived. Bytes following the sentinel stay pending.
func (l *link) read(ctx context.Context, timeout time.Duration, sentinels []*at.Sentinel) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	matcher := at.NewMatcher(sentinels...)
	var buf bytes.Buffer
	for {
		for len(l.pending) > 0 {
			b := l.pending[0]
			l.pending = l.pending[1:]
			buf.WriteByte(b)
			if kind, ok := matcher.Feed(b); ok {
				return Result{Text: buf.String(), Kind: kind}, nil
			}
		}

		more, err := l.next(ctx, timer.C)
		if err != nil {
			return Result{Text: buf.String(), Kind: at.TermTimeout}, err
		}
		if !more {
			return Result{Text: buf.String(), Kind: at.TermTimeout}, nil
		}
	}
}

// readPayload is the data-mode read path. It waits up to timeout for bytes
// and returns 0, nil when none arrived.
func (l *link) readPayload(p []byte, timeout time.Duration) (int, error) {
	if len(l.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		more, err := l.next(context.Background(), timer.C)
		if err != nil || !more {
			return 0, err
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// discard drops every inbound byte received so far.
func (l *link) discard() int {
	n := len(l.pending)
	l.pending = nil
	for {
		select {
		case chunk := <-l.chunks:
			n += len(chunk)
		default:
			return n
		}
	}
}

func (l *link) write(p []byte) error {
	select {
	case <-l.stop:
		return ErrAlreadyClosed
	default:
	}
	if _, err := l.transport.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// drain waits until written bytes left the transport, when supported.
func (l *link) drain() error {
	if d, ok := l.transport.(drainer); ok {
		return d.Drain()
	}
	return nil
}

func (l *link) close() error {
	err := ErrAlreadyClosed
	l.stopOnce.Do(func() {
		close(l.stop)
		err = l.transport.Close()
	})
	return err
}
