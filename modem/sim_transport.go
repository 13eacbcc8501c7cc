package modem

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SimTransport simulates a cellular modem behind a serial line. It answers
// the AT commands used by Modem from its state fields, switches to data
// mode on CONNECT and detects the "+++" escape framed by GuardTime silence.
// State fields may be changed between Modem operations.
//
// Exported for use in tests.
type SimTransport struct {
	// GuardTime is the silence the simulated firmware requires around "+++".
	GuardTime time.Duration
	// Echo repeats every command line ahead of its response.
	Echo bool
	// Silent suppresses every response, as if the modem were powered off.
	Silent bool

	SIM           string
	Registration  int
	Attached      bool
	ContextActive bool
	IMEI          string
	Address       string
	Clock         string

	mu      sync.Mutex
	cond    *sync.Cond
	inbound bytes.Buffer
	closed  bool

	data     bool
	line     []byte
	commands []string
	replies  map[string][]string
	payload  bytes.Buffer

	// escape detection
	lastData  time.Time
	plusCount int
	escapeSeq int
}

// NewSimTransport returns a registered, attached modem in command mode.
func NewSimTransport() *SimTransport {
	t := &SimTransport{
		GuardTime:    20 * time.Millisecond,
		SIM:          "READY",
		Registration: 1,
		Attached:     true,
		IMEI:         "867584030012345",
		Address:      "10.64.12.7",
		Clock:        "25/01/15,10:30:00+32",
		replies:      make(map[string][]string),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Dial makes the simulator its own Dialer.
func (t *SimTransport) Dial(_ context.Context) (Transport, error) {
	return t, nil
}

func (t *SimTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.inbound.Len() == 0 && !t.closed {
		t.cond.Wait()
	}
	if t.inbound.Len() == 0 {
		return 0, io.EOF
	}
	return t.inbound.Read(p)
}

func (t *SimTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	for _, b := range p {
		if t.data {
			t.dataByte(b)
		} else {
			t.commandByte(b)
		}
	}
	return len(p), nil
}

// Drain returns immediately; writes are delivered synchronously.
func (t *SimTransport) Drain() error {
	return nil
}

func (t *SimTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
	return nil
}

// Reply queues responses for the next executions of cmd, overriding the
// state based answer. An empty response leaves the command unanswered.
func (t *SimTransport) Reply(cmd string, responses ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = append(t.replies[cmd], responses...)
}

// Inject delivers bytes to the reader as if the modem sent them.
func (t *SimTransport) Inject(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.send(s)
}

// Reset simulates a modem reboot: back to command mode, context gone.
func (t *SimTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = false
	t.ContextActive = false
	t.plusCount = 0
	t.escapeSeq++
	t.line = nil
}

// SetDataMode forces the link mode, e.g. to simulate a modem left on line.
func (t *SimTransport) SetDataMode(data bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = data
	t.line = nil
}

// SetSilent switches the simulated modem off or on again.
func (t *SimTransport) SetSilent(silent bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Silent = silent
}

// DataMode reports whether the simulator is on line.
func (t *SimTransport) DataMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// Commands returns every command line received so far.
func (t *SimTransport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

// Payload returns the bytes received in data mode, an accepted escape
// excluded.
func (t *SimTransport) Payload() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.payload.String()
}

func (t *SimTransport) send(s string) {
	if t.closed || s == "" {
		return
	}
	t.inbound.WriteString(s)
	t.cond.Broadcast()
}

// dataByte implements the guard time escape detection: "+++" counts only
// after GuardTime without payload, and is accepted once GuardTime passes
// without further input. Filler spaces do not reset the guard time.
func (t *SimTransport) dataByte(b byte) {
	now := time.Now()
	switch {
	case b == '+' && (t.plusCount > 0 || now.Sub(t.lastData) >= t.GuardTime):
		t.plusCount++
		if t.plusCount == 3 {
			t.escapeSeq++
			seq := t.escapeSeq
			time.AfterFunc(t.GuardTime, func() { t.acceptEscape(seq) })
		}
		return
	case b == ' ' && t.plusCount == 0:
		t.payload.WriteByte(b)
		return
	}

	if t.plusCount > 0 {
		t.payload.WriteString(strings.Repeat("+", t.plusCount))
		t.plusCount = 0
		t.escapeSeq++
	}
	t.payload.WriteByte(b)
	t.lastData = now
}

func (t *SimTransport) acceptEscape(seq int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.escapeSeq || !t.data || t.plusCount != 3 {
		return
	}
	t.data = false
	t.plusCount = 0
	t.line = nil
	t.send("\r\nOK\r\n")
}

func (t *SimTransport) commandByte(b byte) {
	if b != '\r' {
		t.line = append(t.line, b)
		return
	}
	line := string(t.line)
	t.line = nil

	// anything ahead of the first "AT" is line noise
	i := strings.Index(strings.ToUpper(line), "AT")
	if i < 0 {
		return
	}
	cmd := strings.TrimSpace(line[i:])
	t.commands = append(t.commands, cmd)
	if t.Silent {
		return
	}

	response := t.respond(cmd)
	if queued := t.replies[cmd]; len(queued) > 0 {
		response = queued[0]
		t.replies[cmd] = queued[1:]
	}
	if response == "" {
		return
	}
	if t.Echo {
		response = cmd + "\r" + response
	}
	t.send(response)
	if strings.Contains(response, "CONNECT") {
		t.data = true
		t.ContextActive = true
		t.lastData = time.Now()
	}
}

// respond answers cmd from the simulator state.
func (t *SimTransport) respond(cmd string) string {
	const ok = "\r\nOK\r\n"
	info := func(s string) string { return "\r\n" + s + "\r\n" + ok }

	switch {
	case cmd == "AT", cmd == "AT+CTZR=1":
		return ok
	case cmd == "AT+GSN":
		return info(t.IMEI)
	case cmd == "AT+CPIN?":
		return info("+CPIN: " + t.SIM)
	case cmd == "AT+CREG?":
		return info("+CREG: 0," + strconv.Itoa(t.Registration))
	case cmd == "AT+CGATT?":
		if t.Attached {
			return info("+CGATT: 1")
		}
		return info("+CGATT: 0")
	case cmd == "AT+CGATT=1":
		t.Attached = true
		return ok
	case strings.HasPrefix(cmd, "AT+CGDCONT="), strings.HasPrefix(cmd, "AT+CGAUTH="):
		return ok
	case cmd == "ATD*99#":
		return "\r\nCONNECT 150000000\r\n"
	case cmd == "ATO":
		if t.ContextActive {
			return "\r\nCONNECT 150000000\r\n"
		}
		return "\r\nNO CARRIER\r\n"
	case cmd == "AT+CGACT?":
		if t.ContextActive {
			return info("+CGACT: 1,1")
		}
		return info("+CGACT: 1,0")
	case cmd == "ATH":
		t.ContextActive = false
		return ok
	case cmd == "AT+CGPADDR=1":
		if t.ContextActive {
			return info(`+CGPADDR: 1,"` + t.Address + `"`)
		}
		return info(`+CGPADDR: 1,"0.0.0.0"`)
	case cmd == "AT+CCLK?":
		return info(`+CCLK: "` + t.Clock + `"`)
	default:
		return "\r\nERROR\r\n"
	}
}
