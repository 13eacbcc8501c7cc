package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"i4.energy/across/celldial/events"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB2")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// LogFormat is "json" or "text"
	LogFormat string `yaml:"log_format"`

	// APN, Username and Password are used for the packet data connection
	APN      string `yaml:"apn"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// DialOnStart connects right after startup
	DialOnStart bool `yaml:"dial_on_start"`
	// CheckInterval is the watchdog period, zero disables the watchdog
	CheckInterval time.Duration `yaml:"check_interval"`

	// HourOffset is added to the carrier clock (8 for UTC+8 reporting)
	HourOffset int `yaml:"hour_offset"`
	// SyncSystemClock sets the host clock from the network time
	SyncSystemClock bool `yaml:"sync_system_clock"`

	// JournalPath is the sqlite journal, empty disables journaling
	JournalPath string `yaml:"journal_path"`

	MQTT MQTTConfig `yaml:"mqtt"`
	NSQ  NSQConfig  `yaml:"nsq"`
}

// MQTTConfig enables event publishing when Broker is set
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c MQTTConfig) events() events.MQTTConfig {
	return events.MQTTConfig{
		Broker:   c.Broker,
		ClientID: c.ClientID,
		Username: c.Username,
		Password: c.Password,
		Topic:    c.Topic,
	}
}

// NSQConfig enables event publishing when Address is set
type NSQConfig struct {
	Address string `yaml:"address"`
	Topic   string `yaml:"topic"`
}

// Options are the command-line flags
type Options struct {
	ConfigFile    string        `short:"c" long:"config" description:"YAML configuration file"`
	EnvFile       string        `long:"env-file" default:".env" description:"Environment file loaded before the environment"`
	BindAddress   string        `long:"bind-address" description:"Bind address for the HTTP server"`
	SerialPort    string        `long:"serial-port" description:"Serial port to connect to the modem"`
	BaudRate      int           `long:"baud-rate" description:"Baud rate for serial communication"`
	LogLevel      string        `long:"log-level" description:"Log level (debug, info, warn, error)"`
	LogFormat     string        `long:"log-format" choice:"json" choice:"text" description:"Log format"`
	APN           string        `long:"apn" description:"Access point name"`
	Username      string        `long:"username" description:"APN user name"`
	Password      string        `long:"password" description:"APN password"`
	DialOnStart   bool          `long:"dial" description:"Connect right after startup"`
	CheckInterval time.Duration `long:"check-interval" description:"Watchdog period, 0 disables"`
	HourOffset    int           `long:"hour-offset" description:"Hours added to the network clock"`
	SyncClock     bool          `long:"sync-clock" description:"Set the system clock from the network time"`
	JournalPath   string        `long:"journal" description:"sqlite journal path, empty disables"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB2"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.LogFormat = "json"
		c.APN = "CMNET"
		c.CheckInterval = time.Minute
		c.HourOffset = 8
		c.MQTT.ClientID = "celldial"
		c.MQTT.Topic = "celldial/events"
		c.NSQ.Topic = "celldial_events"
		return nil
	}
}

// WithFile overlays the YAML file at path. A missing file is not an error.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDotEnv loads variables from an env file into the process environment
// without overriding variables already set. A missing file is not an error.
func WithDotEnv(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		setString(&c.BindAddress, "BIND_ADDRESS")
		setString(&c.SerialPort, "SERIAL_PORT")
		setString(&c.LogLevel, "LOG_LEVEL")
		setString(&c.LogFormat, "LOG_FORMAT")
		setString(&c.APN, "APN")
		setString(&c.Username, "APN_USERNAME")
		setString(&c.Password, "APN_PASSWORD")
		setString(&c.JournalPath, "JOURNAL_PATH")
		setString(&c.MQTT.Broker, "MQTT_BROKER")
		setString(&c.MQTT.ClientID, "MQTT_CLIENT_ID")
		setString(&c.MQTT.Topic, "MQTT_TOPIC")
		setString(&c.MQTT.Username, "MQTT_USERNAME")
		setString(&c.MQTT.Password, "MQTT_PASSWORD")
		setString(&c.NSQ.Address, "NSQ_ADDRESS")
		setString(&c.NSQ.Topic, "NSQ_TOPIC")

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}
		if offset := os.Getenv("HOUR_OFFSET"); offset != "" {
			if h, err := strconv.Atoi(offset); err == nil {
				c.HourOffset = h
			}
		}
		if interval := os.Getenv("CHECK_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.CheckInterval = d
			}
		}
		if dial := os.Getenv("DIAL_ON_START"); dial != "" {
			if b, err := strconv.ParseBool(dial); err == nil {
				c.DialOnStart = b
			}
		}
		if sync := os.Getenv("SYNC_SYSTEM_CLOCK"); sync != "" {
			if b, err := strconv.ParseBool(sync); err == nil {
				c.SyncSystemClock = b
			}
		}

		return nil
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// WithFlags applies the command-line flags that were given explicitly
func WithFlags(parser *flags.Parser, opts *Options) ConfigOption {
	return func(c *Config) error {
		set := func(name string) bool {
			o := parser.FindOptionByLongName(name)
			return o != nil && o.IsSet()
		}

		if set("bind-address") {
			c.BindAddress = opts.BindAddress
		}
		if set("serial-port") {
			c.SerialPort = opts.SerialPort
		}
		if set("baud-rate") {
			c.BaudRate = opts.BaudRate
		}
		if set("log-level") {
			c.LogLevel = opts.LogLevel
		}
		if set("log-format") {
			c.LogFormat = opts.LogFormat
		}
		if set("apn") {
			c.APN = opts.APN
		}
		if set("username") {
			c.Username = opts.Username
		}
		if set("password") {
			c.Password = opts.Password
		}
		if set("dial") {
			c.DialOnStart = opts.DialOnStart
		}
		if set("check-interval") {
			c.CheckInterval = opts.CheckInterval
		}
		if set("hour-offset") {
			c.HourOffset = opts.HourOffset
		}
		if set("sync-clock") {
			c.SyncSystemClock = opts.SyncClock
		}
		if set("journal") {
			c.JournalPath = opts.JournalPath
		}
		return nil
	}
}
