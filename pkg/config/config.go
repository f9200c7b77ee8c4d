package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for configurations the controller cannot run with.
var ErrInvalid = errors.New("invalid configuration")

// MaxWindowSize is the largest supported averaging window.
const MaxWindowSize = 10

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	ADC      ADCConfig      `yaml:"adc"`
	Sampling SamplingConfig `yaml:"sampling"`
	Clock    ClockConfig    `yaml:"clock"`
	Display  DisplayConfig  `yaml:"display"`
	Watering WateringConfig `yaml:"watering"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains the USB-serial I2C bridge configuration.
// An empty port keeps both buses on the simulated board.
type SerialConfig struct {
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ADCConfig describes the analog front-end.
type ADCConfig struct {
	VRef      float64 `yaml:"vref"`       // Reference voltage (V)
	FullScale float64 `yaml:"full_scale"` // Highest raw reading (4095 for 12 bit)
}

// SamplingConfig contains scheduler and window parameters.
type SamplingConfig struct {
	WindowSize      int           `yaml:"window_size"`
	TickPeriod      time.Duration `yaml:"tick_period"`
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
}

// ClockConfig contains the real-time clock bus parameters.
type ClockConfig struct {
	Address      uint8         `yaml:"address"`
	PollRetries  int           `yaml:"poll_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BootTime     string        `yaml:"boot_time"` // "HH:MM" written at start-up, empty to keep the device time
}

// DisplayConfig contains the display collaborator bus address.
type DisplayConfig struct {
	Address uint8 `yaml:"address"`
}

// WateringConfig contains watering gate and actuation timing. Zero is a
// valid max_delta (equal temperatures only) and cooldown (no cooldown), so
// only keys missing from the file take the defaults.
type WateringConfig struct {
	MaxDelta      uint8         `yaml:"max_delta"`
	Cooldown      time.Duration `yaml:"cooldown"`
	OpenDuration  time.Duration `yaml:"open_duration"`
	PauseDuration time.Duration `yaml:"pause_duration"`
	CloseDuration time.Duration `yaml:"close_duration"`
}

// MQTTConfig configures the optional telemetry mirror. Empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig configures the status API. Empty listen address disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MockConfig contains simulated board parameters.
type MockConfig struct {
	AmbientRaw      uint16        `yaml:"ambient_raw"`      // Mean ambient ADC reading
	PlantRaw        uint16        `yaml:"plant_raw"`        // Mean plant ADC reading
	UVRaw           uint16        `yaml:"uv_raw"`           // Mean UV ADC reading
	Noise           uint16        `yaml:"noise"`            // Peak noise amplitude (raw counts)
	ConversionDelay time.Duration `yaml:"conversion_delay"` // Simulated conversion time
	ClockSpeed      float64       `yaml:"clock_speed"`      // Simulated RTC speed factor
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "", // e.g. "/dev/ttyACM0" when a bridge is attached
			BaudRate: 115200,
			Timeout:  100 * time.Millisecond,
		},
		ADC: ADCConfig{
			VRef:      3.3,
			FullScale: 4095,
		},
		Sampling: SamplingConfig{
			WindowSize:      3,
			TickPeriod:      5 * time.Second,
			HeartbeatPeriod: time.Second,
		},
		Clock: ClockConfig{
			Address:      0x68,
			PollRetries:  10000,
			PollInterval: 0,
			BootTime:     "09:00",
		},
		Display: DisplayConfig{
			Address: 0x01,
		},
		Watering: WateringConfig{
			MaxDelta:      2,
			Cooldown:      600 * time.Second,
			OpenDuration:  time.Second,
			PauseDuration: 3 * time.Second,
			CloseDuration: time.Second,
		},
		MQTT: MQTTConfig{
			Topic: "plantcare/telemetry",
		},
		Mock: MockConfig{
			AmbientRaw:      1010,
			PlantRaw:        1015,
			UVRaw:           620,
			Noise:           10,
			ConversionDelay: time.Millisecond,
			ClockSpeed:      1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports the first setting the controller cannot run with.
func (c *Config) Validate() error {
	if c.Sampling.WindowSize < 1 || c.Sampling.WindowSize > MaxWindowSize {
		return fmt.Errorf("%w: sampling.window_size %d not in [1, %d]", ErrInvalid, c.Sampling.WindowSize, MaxWindowSize)
	}
	if c.Sampling.TickPeriod <= 0 {
		return fmt.Errorf("%w: sampling.tick_period must be positive", ErrInvalid)
	}
	if c.Sampling.HeartbeatPeriod <= 0 {
		return fmt.Errorf("%w: sampling.heartbeat_period must be positive", ErrInvalid)
	}
	if c.ADC.VRef <= 0 || c.ADC.FullScale <= 0 {
		return fmt.Errorf("%w: adc.vref and adc.full_scale must be positive", ErrInvalid)
	}
	if c.Clock.Address > 0x7f || c.Display.Address > 0x7f {
		return fmt.Errorf("%w: bus addresses are 7 bit", ErrInvalid)
	}
	if c.Clock.Address == c.Display.Address {
		return fmt.Errorf("%w: clock and display share address 0x%02x", ErrInvalid, c.Clock.Address)
	}
	if c.Clock.PollRetries <= 0 {
		return fmt.Errorf("%w: clock.poll_retries must be positive", ErrInvalid)
	}
	if c.Clock.BootTime != "" {
		if _, _, err := ParseClock(c.Clock.BootTime); err != nil {
			return fmt.Errorf("%w: clock.boot_time: %v", ErrInvalid, err)
		}
	}
	return nil
}

// ParseClock parses an "HH:MM" wall clock time.
func ParseClock(s string) (hours, minutes uint8, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return uint8(t.Hour()), uint8(t.Minute()), nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Timeout == 0 {
		c.Serial.Timeout = def.Serial.Timeout
	}

	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}
	if c.ADC.FullScale == 0 {
		c.ADC.FullScale = def.ADC.FullScale
	}

	if c.Sampling.WindowSize == 0 {
		c.Sampling.WindowSize = def.Sampling.WindowSize
	}
	if c.Sampling.TickPeriod == 0 {
		c.Sampling.TickPeriod = def.Sampling.TickPeriod
	}
	if c.Sampling.HeartbeatPeriod == 0 {
		c.Sampling.HeartbeatPeriod = def.Sampling.HeartbeatPeriod
	}

	if c.Clock.Address == 0 {
		c.Clock.Address = def.Clock.Address
	}
	if c.Clock.PollRetries == 0 {
		c.Clock.PollRetries = def.Clock.PollRetries
	}

	if c.Display.Address == 0 {
		c.Display.Address = def.Display.Address
	}

	if c.Watering.OpenDuration == 0 {
		c.Watering.OpenDuration = def.Watering.OpenDuration
	}
	if c.Watering.PauseDuration == 0 {
		c.Watering.PauseDuration = def.Watering.PauseDuration
	}
	if c.Watering.CloseDuration == 0 {
		c.Watering.CloseDuration = def.Watering.CloseDuration
	}

	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}

	if c.Mock.ConversionDelay == 0 {
		c.Mock.ConversionDelay = def.Mock.ConversionDelay
	}
	if c.Mock.ClockSpeed == 0 {
		c.Mock.ClockSpeed = def.Mock.ClockSpeed
	}
}
