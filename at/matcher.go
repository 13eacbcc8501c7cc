package at

// Terminal identifies how a modem response ended.
type Terminal int

const (
	// TermTimeout means no sentinel was recognized before the deadline.
	TermTimeout Terminal = iota
	TermOK
	TermError
	TermNoCarrier
	TermConnect
)

// String returns the wire text of the terminal.
func (t Terminal) String() string {
	switch t {
	case TermOK:
		return OK
	case TermError:
		return ERROR
	case TermNoCarrier:
		return NoCarrier
	case TermConnect:
		return Connect
	default:
		return "TIMEOUT"
	}
}

// Sentinel is a fixed byte pattern that marks the end of a response.
// When ToEOL is set the response ends at the first LF after the pattern,
// which covers result codes that carry a suffix ("CONNECT 115200").
type Sentinel struct {
	Kind    Terminal
	Pattern string
	ToEOL   bool
	fail    []int
}

// NewSentinel precomputes the partial-match table for pattern.
func NewSentinel(kind Terminal, pattern string, toEOL bool) *Sentinel {
	fail := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = fail[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		fail[i] = k
	}
	return &Sentinel{Kind: kind, Pattern: pattern, ToEOL: toEOL, fail: fail}
}

var (
	SentinelOK        = NewSentinel(TermOK, CRLF+OK+CRLF, false)
	SentinelError     = NewSentinel(TermError, CRLF+ERROR+CRLF, false)
	SentinelNoCarrier = NewSentinel(TermNoCarrier, CRLF+NoCarrier+CRLF, false)
	SentinelConnect   = NewSentinel(TermConnect, CRLF+Connect, true)

	// FinalSentinels terminate ordinary command responses.
	FinalSentinels = []*Sentinel{SentinelOK, SentinelError, SentinelNoCarrier}

	// OnlineSentinels terminate commands that switch the modem on line
	// (dial, resume). CONNECT must end the read so that the first PPP
	// frames are left for the data stream.
	OnlineSentinels = []*Sentinel{SentinelOK, SentinelError, SentinelNoCarrier, SentinelConnect}
)

// Matcher recognizes sentinels incrementally, one byte at a time. It keeps
// the longest partial match per pattern, so a match is reported exactly when
// the bytes fed so far end with one of the patterns.
type Matcher struct {
	sentinels []*Sentinel
	states    []int
	tail      int
}

// NewMatcher returns a matcher for the given sentinels, or for
// FinalSentinels when none are given.
func NewMatcher(sentinels ...*Sentinel) *Matcher {
	if len(sentinels) == 0 {
		sentinels = FinalSentinels
	}
	return &Matcher{
		sentinels: sentinels,
		states:    make([]int, len(sentinels)),
		tail:      -1,
	}
}

// Reset clears all partial matches.
func (m *Matcher) Reset() {
	for i := range m.states {
		m.states[i] = 0
	}
	m.tail = -1
}

// Feed advances the matcher by one byte and reports the terminal kind
// once a sentinel is complete.
func (m *Matcher) Feed(b byte) (Terminal, bool) {
	if m.tail >= 0 {
		if b != '\n' {
			return TermTimeout, false
		}
		kind := m.sentinels[m.tail].Kind
		m.Reset()
		return kind, true
	}

	for i, s := range m.sentinels {
		st := m.states[i]
		for st > 0 && s.Pattern[st] != b {
			st = s.fail[st-1]
		}
		if s.Pattern[st] == b {
			st++
		}
		if st == len(s.Pattern) {
			if s.ToEOL {
				m.Reset()
				m.tail = i
				return TermTimeout, false
			}
			m.Reset()
			return s.Kind, true
		}
		m.states[i] = st
	}
	return TermTimeout, false
}
