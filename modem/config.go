package modem

import (
	"log/slog"
	"time"
)

// Config holds the modem session settings. Use NewConfigBuilder to obtain a
// validated Config with defaults applied.
type Config struct {
	Dialer Dialer

	// CommandTimeout bounds ordinary AT commands.
	CommandTimeout time.Duration
	// ProbeTimeout bounds the "AT" probe used to detect command mode.
	ProbeTimeout time.Duration
	// DialTimeout bounds ATD and ATO.
	DialTimeout time.Duration
	// PayloadPoll bounds one payload read, after which the link is handed
	// back to pending operations.
	PayloadPoll time.Duration

	// GuardTime is the silence kept before and after the "+++" escape.
	GuardTime time.Duration
	// FillerPause separates the filler bytes from the escape token.
	FillerPause time.Duration

	// SettleDelay is waited before retrying after the SIM was not ready.
	SettleDelay time.Duration
	// RegistrationWait is waited before the single registration re-check.
	RegistrationWait time.Duration
	// AttachSettle is waited after a successful packet attach.
	AttachSettle time.Duration
	// MaxAttempts is the number of full dial sequences per Connect call.
	MaxAttempts int
	// DefaultAPN is used when data mode has to be recovered by redialing.
	DefaultAPN string

	// HourOffset is added to the carrier clock to obtain the reporting zone.
	HourOffset int
	// Clocks receive the network time after a successful sync.
	Clocks []ClockSink

	Logger   *slog.Logger
	Observer Observer
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.PayloadPoll == 0 {
		c.PayloadPoll = 100 * time.Millisecond
	}
	if c.GuardTime == 0 {
		c.GuardTime = 1100 * time.Millisecond
	}
	if c.FillerPause == 0 {
		c.FillerPause = 100 * time.Millisecond
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = time.Second
	}
	if c.RegistrationWait == 0 {
		c.RegistrationWait = 60 * time.Second
	}
	if c.AttachSettle == 0 {
		c.AttachSettle = 2 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.DefaultAPN == "" {
		c.DefaultAPN = "CMNET"
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Observer == nil {
		c.Observer = ObserverFunc(func(Event) {})
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no settings applied.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithProbeTimeout(d time.Duration) *ConfigBuilder {
	b.config.ProbeTimeout = d
	return b
}

func (b *ConfigBuilder) WithDialTimeout(d time.Duration) *ConfigBuilder {
	b.config.DialTimeout = d
	return b
}

func (b *ConfigBuilder) WithPayloadPoll(d time.Duration) *ConfigBuilder {
	b.config.PayloadPoll = d
	return b
}

func (b *ConfigBuilder) WithGuardTime(d time.Duration) *ConfigBuilder {
	b.config.GuardTime = d
	return b
}

func (b *ConfigBuilder) WithFillerPause(d time.Duration) *ConfigBuilder {
	b.config.FillerPause = d
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

func (b *ConfigBuilder) WithRegistrationWait(d time.Duration) *ConfigBuilder {
	b.config.RegistrationWait = d
	return b
}

func (b *ConfigBuilder) WithAttachSettle(d time.Duration) *ConfigBuilder {
	b.config.AttachSettle = d
	return b
}

func (b *ConfigBuilder) WithMaxAttempts(n int) *ConfigBuilder {
	b.config.MaxAttempts = n
	return b
}

func (b *ConfigBuilder) WithDefaultAPN(apn string) *ConfigBuilder {
	b.config.DefaultAPN = apn
	return b
}

// WithHourOffset sets the hours added to the carrier clock. The reference
// deployment reports in UTC+8 and uses 8.
func (b *ConfigBuilder) WithHourOffset(hours int) *ConfigBuilder {
	b.config.HourOffset = hours
	return b
}

// WithClock adds a sink for the network time. May be called repeatedly.
func (b *ConfigBuilder) WithClock(c ClockSink) *ConfigBuilder {
	b.config.Clocks = append(b.config.Clocks, c)
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithObserver(o Observer) *ConfigBuilder {
	b.config.Observer = o
	return b
}

// Build validates the settings and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
