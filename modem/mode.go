package modem

import (
	"context"
	"fmt"

	"i4.energy/across/celldial/at"
)

// Mode is the state of the serial link: AT commands are only understood in
// command mode, while data mode carries PPP frames.
type Mode int32

const (
	ModeCommand Mode = iota
	ModeData
)

func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "command"
	case ModeData:
		return "data"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

func (m *Modem) setMode(mode Mode) {
	prev := Mode(m.mode.Swap(int32(mode)))
	if prev == mode {
		return
	}
	m.log.Info("Link mode changed", "from", prev, "to", mode)
	m.emit(Event{Kind: EventModeChange, Mode: mode, OK: true})
}

// probe sends a bare "AT" and reports whether the modem answered OK within
// the probe timeout.
func (m *Modem) probe(ctx context.Context) (bool, error) {
	r, err := m.exchange(ctx, at.CmdAt, m.config.ProbeTimeout, at.FinalSentinels)
	if err != nil {
		return false, err
	}
	return r.Kind == at.TermOK, nil
}

// enterCommandMode makes sure the modem accepts AT commands. A modem that
// answers the probe is in command mode whatever the recorded mode says.
// Otherwise the escape sequence is sent and the probe repeated.
func (m *Modem) enterCommandMode(ctx context.Context) error {
	ok, err := m.probe(ctx)
	if err != nil {
		return err
	}
	if ok {
		m.setMode(ModeCommand)
		return nil
	}

	m.log.Debug("Modem not answering, sending escape sequence")
	if err := m.escape(ctx); err != nil {
		return err
	}
	ok, err = m.probe(ctx)
	m.emit(Event{Kind: EventEscape, OK: err == nil && ok, Error: errText(err)})
	if err != nil {
		return err
	}
	if !ok {
		m.setMode(ModeData)
		m.log.Warn("Escape sequence failed")
		return ErrNotCommandMode
	}
	m.setMode(ModeCommand)
	return nil
}

// escape sends the "+++" escape sequence framed by guard time silence. The
// filler run ahead of it flushes a partial frame the modem may be holding.
func (m *Modem) escape(ctx context.Context) error {
	if err := m.sleep(ctx, m.config.GuardTime); err != nil {
		return err
	}
	if err := m.link.write([]byte(at.Filler)); err != nil {
		return err
	}
	if err := m.sleep(ctx, m.config.FillerPause); err != nil {
		return err
	}
	if err := m.link.write([]byte(at.Escape)); err != nil {
		return err
	}
	if err := m.link.drain(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	if err := m.sleep(ctx, m.config.GuardTime); err != nil {
		return err
	}
	m.link.discard()
	return nil
}

// enterDataMode puts the modem back on line. A modem already in command
// mode with an active context is resumed with ATO; without an active context
// the full dial sequence runs with the default APN.
func (m *Modem) enterDataMode(ctx context.Context) error {
	ok, err := m.probe(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// no answer to AT: the modem is already on line
		m.setMode(ModeData)
		return nil
	}
	m.setMode(ModeCommand)

	r, err := m.exchange(ctx, at.CmdContextActive, m.config.CommandTimeout, at.FinalSentinels)
	if err != nil {
		return err
	}
	if r.Kind == at.TermOK && r.Contains(at.ContextActive) {
		r, err = m.exchange(ctx, at.CmdOnline, m.config.DialTimeout, at.OnlineSentinels)
		if err != nil {
			return err
		}
		if r.Kind == at.TermConnect {
			m.setMode(ModeData)
			return nil
		}
		m.log.Warn("Resume failed, redialing", "result", r.Kind)
	}

	return m.connect(ctx, ConnectionParams{APN: m.config.DefaultAPN})
}
