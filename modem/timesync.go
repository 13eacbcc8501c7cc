package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/celldial/at"
)

// networkSample holds the fields of a +CCLK response as sent by the modem.
// Zone is in quarter hours and informational only: the hour adjustment is
// taken from the configuration.
type networkSample struct {
	Year, Month, Day     int
	Hour, Minute, Second int
	Zone                 int
}

// parseNetworkTime extracts the quoted "yy/MM/dd,hh:mm:ss±zz" field from a
// +CCLK response. All seven components must be present.
func parseNetworkTime(response string) (networkSample, error) {
	var field string
	for _, line := range at.Lines(response) {
		if rest, ok := strings.CutPrefix(line, at.ClockPrefix); ok {
			field = strings.Trim(strings.TrimSpace(rest), `"`)
			break
		}
	}
	if field == "" {
		return networkSample{}, fmt.Errorf("%w: no clock in %q", ErrParse, strings.TrimSpace(response))
	}

	var s networkSample
	n, err := fmt.Sscanf(field, "%2d/%2d/%2d,%2d:%2d:%2d%d",
		&s.Year, &s.Month, &s.Day, &s.Hour, &s.Minute, &s.Second, &s.Zone)
	if n != 7 {
		return networkSample{}, fmt.Errorf("%w: clock %q has %d of 7 fields: %v", ErrParse, field, n, err)
	}
	return s, nil
}

// normalize converts the sample to an absolute UTC timestamp. The two-digit
// year is taken as 20yy. The hour is shifted by offset and a day boundary
// crossed by the shift moves the date.
func (s networkSample) normalize(offset int) (time.Time, error) {
	year := s.Year + 2000
	hour := s.Hour + offset
	day := s.Day
	for hour >= 24 {
		hour -= 24
		day++
	}
	for hour < 0 {
		hour += 24
		day--
	}

	if s.Month < 1 || s.Month > 12 || s.Day < 1 || s.Day > 31 ||
		s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 || s.Second < 0 || s.Second > 60 {
		return time.Time{}, fmt.Errorf("%w: clock out of range: %+v", ErrParse, s)
	}
	// time.Date carries a day past the month end into the next month
	return time.Date(year, time.Month(s.Month), day, hour, s.Minute, s.Second, 0, time.UTC), nil
}

// networkTime enables time zone reporting, reads the carrier clock and
// pushes the result to every configured clock. A parse failure leaves the
// clocks untouched and returns the zero time.
func (m *Modem) networkTime(ctx context.Context) (time.Time, error) {
	t, err := m.readNetworkTime(ctx)
	if err != nil {
		m.emit(Event{Kind: EventTimeSync, Error: errText(err)})
		return time.Time{}, err
	}

	var errs []error
	for _, clock := range m.config.Clocks {
		if err := clock.SetTime(t); err != nil {
			errs = append(errs, err)
		}
	}
	m.log.Info("Network time synchronized", "time", t)
	m.emit(Event{Kind: EventTimeSync, OK: len(errs) == 0, Network: t, Error: errText(errors.Join(errs...))})
	if len(errs) > 0 {
		return t, fmt.Errorf("set clock: %w", errors.Join(errs...))
	}
	return t, nil
}

func (m *Modem) readNetworkTime(ctx context.Context) (time.Time, error) {
	if _, err := m.expectOK(ctx, at.CmdTimeZoneReport); err != nil {
		if fatal(err) {
			return time.Time{}, err
		}
		m.log.Warn("Time zone reporting not enabled", "error", err)
	}

	r, err := m.expectOK(ctx, at.CmdClock)
	if err != nil {
		return time.Time{}, err
	}
	sample, err := parseNetworkTime(r.Text)
	if err != nil {
		return time.Time{}, err
	}
	return sample.normalize(m.config.HourOffset)
}
