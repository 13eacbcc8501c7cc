package modem

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"i4.energy/across/celldial/at"
)

// stepOutcome tells the dial loop how to proceed after one step.
type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepRetry
	stepFail
	stepSuccess
)

type dialStep struct {
	name string
	run  func(ctx context.Context, p ConnectionParams) (stepOutcome, error)
}

func (m *Modem) dialSteps() []dialStep {
	return []dialStep{
		{"command mode", m.stepCommandMode},
		{"sim", m.stepSIM},
		{"registration", m.stepRegistration},
		{"time sync", m.stepTimeSync},
		{"attach", m.stepAttach},
		{"apn", m.stepAPN},
		{"auth", m.stepAuth},
		{"dial", m.stepDial},
	}
}

// connect runs the dial sequence until the modem reports CONNECT or the
// attempt budget is spent. A failed step restarts the whole sequence, so
// SIM, registration and attach state are re-validated on every attempt.
// The counter is reset on success and when the budget is exhausted.
func (m *Modem) connect(ctx context.Context, p ConnectionParams) error {
	var lastErr error
	for {
		if m.attempts >= m.config.MaxAttempts {
			attempts := m.attempts
			m.attempts = 0
			err := fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, lastErr)
			m.log.Error("Dialing failed", "attempts", attempts, "error", lastErr)
			m.emit(Event{Kind: EventDialResult, Attempt: attempts, APN: p.APN, Error: errText(err)})
			return err
		}

		attempt := m.attempts + 1
		m.log.Info("Dialing", "apn", p.APN, "attempt", attempt)
		m.emit(Event{Kind: EventDialAttempt, Attempt: attempt, APN: p.APN, OK: true})

		outcome, step, err := m.runSequence(ctx, p)
		switch outcome {
		case stepSuccess:
			m.attempts = 0
			m.setMode(ModeData)
			m.log.Info("Data connection established", "apn", p.APN, "attempt", attempt)
			m.emit(Event{Kind: EventDialResult, Attempt: attempt, APN: p.APN, OK: true})
			return nil
		case stepFail:
			m.attempts = 0
			m.emit(Event{Kind: EventDialResult, Attempt: attempt, APN: p.APN, Error: errText(err)})
			return fmt.Errorf("dial %s: %w", step, err)
		default:
			m.attempts++
			lastErr = fmt.Errorf("%s: %w", step, err)
			m.log.Warn("Dial attempt failed", "step", step, "attempt", attempt, "error", err)
		}
	}
}

// runSequence executes every step once, stopping at the first step that
// does not continue.
func (m *Modem) runSequence(ctx context.Context, p ConnectionParams) (stepOutcome, string, error) {
	for _, step := range m.dialSteps() {
		outcome, err := step.run(ctx, p)
		if outcome != stepContinue {
			return outcome, step.name, err
		}
	}
	return stepFail, "dial", fmt.Errorf("%w: sequence ended without CONNECT", ErrProtocol)
}

// retryOrFail classifies a step error. Cancellation and a closed link end
// the call; anything the modem answered is worth another attempt.
func retryOrFail(err error) (stepOutcome, error) {
	if fatal(err) {
		return stepFail, err
	}
	return stepRetry, err
}

func fatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrAlreadyClosed)
}

func (m *Modem) stepCommandMode(ctx context.Context, _ ConnectionParams) (stepOutcome, error) {
	if err := m.enterCommandMode(ctx); err != nil {
		return retryOrFail(err)
	}
	return stepContinue, nil
}

func (m *Modem) stepSIM(ctx context.Context, _ ConnectionParams) (stepOutcome, error) {
	_, err := m.expect(ctx, at.CmdSimStatus, at.SimReady)
	if err == nil {
		return stepContinue, nil
	}
	if fatal(err) {
		return stepFail, err
	}
	m.log.Warn("SIM not ready", "error", err)
	if err := m.sleep(ctx, m.config.SettleDelay); err != nil {
		return stepFail, err
	}
	return stepRetry, err
}

func (m *Modem) stepRegistration(ctx context.Context, _ ConnectionParams) (stepOutcome, error) {
	_, err := m.expect(ctx, at.CmdRegistration, at.RegisteredHome, at.RegisteredRoam)
	if err == nil {
		return stepContinue, nil
	}
	if fatal(err) {
		return stepFail, err
	}

	m.log.Info("Waiting for network registration", "wait", m.config.RegistrationWait)
	if err := m.sleep(ctx, m.config.RegistrationWait); err != nil {
		return stepFail, err
	}
	if _, err := m.expect(ctx, at.CmdRegistration, at.RegisteredHome, at.RegisteredRoam); err != nil {
		return retryOrFail(err)
	}
	return stepContinue, nil
}

// stepTimeSync never fails the sequence unless the link itself is gone.
func (m *Modem) stepTimeSync(ctx context.Context, _ ConnectionParams) (stepOutcome, error) {
	if _, err := m.networkTime(ctx); err != nil {
		if fatal(err) {
			return stepFail, err
		}
		m.log.Warn("Network time sync failed", "error", err)
	}
	return stepContinue, nil
}

func (m *Modem) stepAttach(ctx context.Context, _ ConnectionParams) (stepOutcome, error) {
	if _, err := m.expect(ctx, at.CmdAttachStatus, at.Attached); err == nil {
		return stepContinue, nil
	} else if fatal(err) {
		return stepFail, err
	}

	m.log.Info("Attaching to packet domain")
	if _, err := m.expectOK(ctx, at.CmdAttach); err != nil {
		return retryOrFail(err)
	}
	if err := m.sleep(ctx, m.config.AttachSettle); err != nil {
		return stepFail, err
	}
	return stepContinue, nil
}

func (m *Modem) stepAPN(ctx context.Context, p ConnectionParams) (stepOutcome, error) {
	if _, err := m.expectOK(ctx, fmt.Sprintf(at.CmdDefineContext, p.APN)); err != nil {
		return retryOrFail(err)
	}
	return stepContinue, nil
}

func (m *Modem) stepAuth(ctx context.Context, p ConnectionParams) (stepOutcome, error) {
	if p.Username == "" {
		return stepContinue, nil
	}
	if _, err := m.expectOK(ctx, fmt.Sprintf(at.CmdContextAuth, p.Username, p.Password)); err != nil {
		return retryOrFail(err)
	}
	return stepContinue, nil
}

func (m *Modem) stepDial(ctx context.Context, _ ConnectionParams) (stepOutcome, error) {
	r, err := m.online(ctx, at.CmdDial)
	if err != nil {
		return retryOrFail(err)
	}
	if !r.Contains(at.Connect) {
		return stepRetry, r.failure(at.CmdDial)
	}
	return stepSuccess, nil
}

// online runs a command that switches the modem on line. CONNECT ends the
// response so the PPP frames that follow are left to the payload stream.
func (m *Modem) online(ctx context.Context, cmd string) (Result, error) {
	if err := m.enterCommandMode(ctx); err != nil {
		return Result{}, err
	}
	return m.exchange(ctx, cmd, m.config.DialTimeout, at.OnlineSentinels)
}

// hangup terminates the call. NO CARRIER counts as success: the carrier is
// gone either way.
func (m *Modem) hangup(ctx context.Context) error {
	r, err := m.command(ctx, at.CmdHangup, m.config.CommandTimeout)
	if err == nil && r.Kind != at.TermOK && r.Kind != at.TermNoCarrier {
		err = r.failure(at.CmdHangup)
	}
	m.emit(Event{Kind: EventHangup, OK: err == nil, Error: errText(err)})
	if err != nil {
		m.log.Warn("Hangup failed", "error", err)
		return err
	}
	m.setMode(ModeCommand)
	m.log.Info("Data connection terminated")
	return nil
}

// checkPPPStatus leaves data mode to query the assigned address. Data mode
// is only restored when an address is present.
func (m *Modem) checkPPPStatus(ctx context.Context) (bool, error) {
	if m.Mode() != ModeData {
		return false, nil
	}
	if err := m.enterCommandMode(ctx); err != nil {
		return false, err
	}

	r, err := m.exchange(ctx, at.CmdAddress, m.config.CommandTimeout, at.FinalSentinels)
	if err != nil {
		return false, err
	}
	addr, hasIP := parseAddress(r.Text)

	event := Event{Kind: EventPPPStatus, OK: hasIP, Address: addr}
	if hasIP {
		if err := m.enterDataMode(ctx); err != nil {
			err = fmt.Errorf("%w: %w", ErrDataModeLost, err)
			event.Error = errText(err)
			m.emit(event)
			m.log.Error("Data mode lost after status check", "error", err)
			return true, err
		}
	}
	m.emit(event)
	m.log.Debug("PPP status", "address", addr, "connected", hasIP)
	return hasIP, nil
}

// parseAddress extracts the address from a +CGPADDR response. The
// unspecified address means the context holds no IP.
func parseAddress(response string) (string, bool) {
	for _, line := range at.Lines(response) {
		rest, ok := strings.CutPrefix(line, at.AddressPrefix)
		if !ok {
			continue
		}
		_, field, ok := strings.Cut(rest, ",")
		if !ok {
			continue
		}
		field = strings.Trim(strings.TrimSpace(field), `"`)
		addr, err := netip.ParseAddr(field)
		if err != nil || addr.IsUnspecified() {
			continue
		}
		return addr.String(), true
	}
	return "", false
}
