package modem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"i4.energy/across/celldial/at"
)

// Modem drives a cellular modem over a serial link: it frames AT responses,
// switches between command and data mode, dials and hangs up the packet data
// connection and synchronizes the clock from the network.
//
// A Modem is constructed once at startup and shared by reference. Public
// methods are serialized: exactly one command, dial, hangup or status
// operation is outstanding at any time.
type Modem struct {
	// mu serializes all public operations on the link
	mu sync.Mutex
	// link reads the transport and frames responses
	link *link
	// config contains the session settings with defaults applied
	config Config
	log    *slog.Logger
	// observer receives every Event
	observer Observer

	// mode is the last known link mode, see Mode
	mode atomic.Int32
	// attempts counts failed dial sequences of the current Connect call
	attempts int

	closed atomic.Bool
	// done is closed by Close and interrupts sleeps
	done chan struct{}
}

// ConnectionParams are the caller supplied packet data settings.
type ConnectionParams struct {
	APN      string
	Username string
	Password string
}

// New creates a new Modem with the given configuration. It opens the
// transport through the configured Dialer and checks that the modem answers
// in command mode, escaping from data mode if the modem was left on line.
//
// Returns an error if the transport cannot be opened or the modem does not
// respond.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		link:     newLink(transport),
		config:   config,
		log:      config.Logger,
		observer: config.Observer,
		done:     make(chan struct{}),
	}
	m.mode.Store(int32(ModeCommand))

	if err := m.begin(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}
	return m, nil
}

// begin checks that the modem answers "AT" with OK.
func (m *Modem) begin(ctx context.Context) error {
	r, err := m.command(ctx, at.CmdAt, m.config.CommandTimeout)
	if err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}
	if r.Kind != at.TermOK {
		return fmt.Errorf("modem not responding: %w", r.failure(at.CmdAt))
	}
	m.log.Info("Modem ready")
	return nil
}

// Close shuts down the modem and releases the transport. An active data
// connection is not hung up. After Close the Modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	close(m.done)
	return m.link.close()
}

// IsReady reports whether the modem answers "AT" with OK.
func (m *Modem) IsReady(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.command(ctx, at.CmdAt, m.config.CommandTimeout)
	return err == nil && r.Kind == at.TermOK
}

// Status returns the link mode and, in command mode, whether the modem
// answers "AT" with OK. In data mode the modem is reported not ready without
// a probe: probing would escape the active session. Mode and probe are read
// under the same lock, so a Connect in progress is waited for.
func (m *Modem) Status(ctx context.Context) (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Mode() == ModeData {
		return ModeData, false
	}
	r, err := m.command(ctx, at.CmdAt, m.config.CommandTimeout)
	return m.Mode(), err == nil && r.Kind == at.TermOK
}

// IMEI queries the module's serial number.
func (m *Modem) IMEI(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.expectOK(ctx, at.CmdIMEI)
	if err != nil {
		return "", err
	}
	for _, line := range at.Lines(r.Text) {
		if isDigits(line) {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s: %w: %q", at.CmdIMEI, ErrParse, strings.TrimSpace(r.Text))
}

// Connect establishes the packet data connection and leaves the modem in
// data mode. See connect for the dial sequence.
func (m *Modem) Connect(ctx context.Context, apn, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connect(ctx, ConnectionParams{APN: apn, Username: username, Password: password})
}

// Hangup terminates the packet data connection and leaves the modem in
// command mode.
func (m *Modem) Hangup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hangup(ctx)
}

// CheckPPPStatus reports whether the data connection holds an IP address.
// It returns false without touching the link unless the modem is in data
// mode. Callers must re-check Mode afterwards: the link can be left in
// command mode when no address is assigned or resuming failed.
func (m *Modem) CheckPPPStatus(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.checkPPPStatus(ctx)
}

// NetworkTime reads the carrier clock, pushes it to the configured clock
// sinks and returns it. On failure the zero time is returned and no sink is
// touched.
func (m *Modem) NetworkTime(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.networkTime(ctx)
}

// Mode returns the last known link mode without probing the modem.
func (m *Modem) Mode() Mode {
	return Mode(m.mode.Load())
}

// Payload returns the data-mode byte stream for the PPP stack. Reads and
// writes fail with ErrNotDataMode while the modem is in command mode.
//
// Reads and writes hold the same lock as the other operations. A read waits
// at most PayloadPoll and returns 0, nil when nothing arrived, like a serial
// port with a read timeout, so that CheckPPPStatus or Hangup can take the
// link between reads.
func (m *Modem) Payload() io.ReadWriter {
	return payload{m}
}

type payload struct {
	m *Modem
}

func (p payload) Read(b []byte) (int, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	if p.m.Mode() != ModeData {
		return 0, ErrNotDataMode
	}
	return p.m.link.readPayload(b, p.m.config.PayloadPoll)
}

func (p payload) Write(b []byte) (int, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	if p.m.Mode() != ModeData {
		return 0, ErrNotDataMode
	}
	if err := p.m.link.write(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// exchange writes one command line and reads its response. It does not
// check the link mode; the mode probe itself is built on it.
func (m *Modem) exchange(ctx context.Context, cmd string, timeout time.Duration, sentinels []*at.Sentinel) (Result, error) {
	if m.closed.Load() {
		return Result{}, ErrAlreadyClosed
	}

	if n := m.link.discard(); n > 0 {
		m.log.Debug("Discarded stale input", "bytes", n)
	}
	start := time.Now()
	if err := m.link.write([]byte(cmd + at.CR)); err != nil {
		return Result{}, fmt.Errorf("command %q: %w", redact(cmd), err)
	}

	r, err := m.link.read(ctx, timeout, sentinels)
	m.log.Debug("AT exchange", "command", redact(cmd), "result", r.Kind, "response", strings.TrimSpace(r.Text))
	m.emit(Event{
		Kind:     EventCommand,
		Command:  redact(cmd),
		Terminal: r.Kind,
		Duration: time.Since(start),
		OK:       err == nil && (r.Kind == at.TermOK || r.Kind == at.TermConnect),
		Error:    errText(err),
	})
	if err != nil {
		return r, fmt.Errorf("command %q: %w", redact(cmd), err)
	}
	return r, nil
}

// command guarantees command mode, then runs cmd with the given timeout.
func (m *Modem) command(ctx context.Context, cmd string, timeout time.Duration) (Result, error) {
	if err := m.enterCommandMode(ctx); err != nil {
		return Result{}, err
	}
	return m.exchange(ctx, cmd, timeout, at.FinalSentinels)
}

// expectOK runs cmd and requires the OK result code.
func (m *Modem) expectOK(ctx context.Context, cmd string) (Result, error) {
	r, err := m.command(ctx, cmd, m.config.CommandTimeout)
	if err != nil {
		return r, err
	}
	if r.Kind != at.TermOK {
		return r, r.failure(redact(cmd))
	}
	return r, nil
}

// expect runs cmd and requires the response to contain one of want.
func (m *Modem) expect(ctx context.Context, cmd string, want ...string) (Result, error) {
	r, err := m.command(ctx, cmd, m.config.CommandTimeout)
	if err != nil {
		return r, err
	}
	for _, w := range want {
		if r.Contains(w) {
			return r, nil
		}
	}
	return r, r.failure(cmd)
}

// sleep waits for d unless the context is cancelled or the modem closed.
func (m *Modem) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrAlreadyClosed
	}
}

// redact hides credentials embedded in the authentication command.
func redact(cmd string) string {
	if strings.HasPrefix(cmd, "AT+CGAUTH=") {
		return "AT+CGAUTH=<redacted>"
	}
	return cmd
}

func isDigits(s string) bool {
	if len(s) < 14 || len(s) > 17 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
