package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the brick host configuration. It is read once at
// composition time; nothing in the wake cycle writes it.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Storage  StorageConfig  `yaml:"storage"`
	Heater   HeaterConfig   `yaml:"heater"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Cycle    CycleConfig    `yaml:"cycle"`
	Mock     MockConfig     `yaml:"mock"`
}

// NodeConfig identifies the brick on the network.
type NodeConfig struct {
	MAC       string `yaml:"mac"`       // Overrides the interface MAC (e.g. "a4:cf:12:00:11:22")
	Interface string `yaml:"interface"` // Interface to take the MAC from (empty = first non-loopback)
}

// StorageConfig contains locations of the persistent and retained stores.
type StorageConfig struct {
	Persistent string `yaml:"persistent"` // YAML file on durable storage
	Retained   string `yaml:"retained"`   // Snapshot file on tmpfs (survives restarts, not power loss)
}

// HeaterConfig selects the expander driving the heater output.
type HeaterConfig struct {
	Driver   string `yaml:"driver"`    // "mock", "gpio" or "serial"
	Chip     string `yaml:"chip"`      // GPIO chip for the gpio driver (e.g. "gpiochip0")
	Port     string `yaml:"port"`      // Serial port of the co-processor expander
	BaudRate int    `yaml:"baud_rate"` // Baud rate of the co-processor expander
	Pin      uint8  `yaml:"pin"`       // Expander pin index wired to the heater
}

// SensorConfig selects the one-wire bus of the temperature sensor.
type SensorConfig struct {
	Driver       string        `yaml:"driver"`        // "mock" or "w1"
	Root         string        `yaml:"root"`          // w1 sysfs device directory
	Pin          uint8         `yaml:"pin"`           // Bus pin (informational for w1, set by the overlay)
	PollInterval time.Duration `yaml:"poll_interval"` // Sleep between conversion-complete polls
	Timeout      time.Duration `yaml:"timeout"`       // Upper bound for a single conversion wait
}

// ExchangeConfig contains the remote controller transport.
type ExchangeConfig struct {
	Driver      string        `yaml:"driver"`       // "mqtt" or "loopback"
	Broker      string        `yaml:"broker"`       // e.g. "tcp://brickserver.local:1883"
	Discover    bool          `yaml:"discover"`     // Browse mDNS for a broker when Broker is empty
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CycleConfig contains wake cycle timing.
type CycleConfig struct {
	Sleep time.Duration `yaml:"sleep"` // Time between wake cycles
}

// MockConfig contains simulated hardware parameters.
type MockConfig struct {
	Devices     int     `yaml:"devices"`     // Number of simulated sensors on the bus
	Temperature float32 `yaml:"temperature"` // Simulated radiator temperature (°C)
	TimeScale   float64 `yaml:"time_scale"`  // Multiplier for simulated conversion time (1 = real time)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Persistent: "brick.yaml",
			Retained:   "/run/brickheat/rtc.bin",
		},
		Heater: HeaterConfig{
			Driver:   "mock",
			Chip:     "gpiochip0",
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
			Pin:      0,
		},
		Sensor: SensorConfig{
			Driver:       "mock",
			Root:         "/sys/bus/w1/devices",
			Pin:          4,
			PollInterval: time.Millisecond,
			Timeout:      time.Second,
		},
		Exchange: ExchangeConfig{
			Driver:      "loopback",
			TopicPrefix: "bricks",
			Timeout:     5 * time.Second,
		},
		Cycle: CycleConfig{
			Sleep: time.Minute,
		},
		Mock: MockConfig{
			Devices:     1,
			Temperature: 21.5,
			TimeScale:   1,
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

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Storage.Persistent == "" {
		c.Storage.Persistent = def.Storage.Persistent
	}
	if c.Storage.Retained == "" {
		c.Storage.Retained = def.Storage.Retained
	}

	if c.Heater.Driver == "" {
		c.Heater.Driver = def.Heater.Driver
	}
	if c.Heater.Chip == "" {
		c.Heater.Chip = def.Heater.Chip
	}
	if c.Heater.Port == "" {
		c.Heater.Port = def.Heater.Port
	}
	if c.Heater.BaudRate == 0 {
		c.Heater.BaudRate = def.Heater.BaudRate
	}

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.Root == "" {
		c.Sensor.Root = def.Sensor.Root
	}
	if c.Sensor.PollInterval == 0 {
		c.Sensor.PollInterval = def.Sensor.PollInterval
	}
	if c.Sensor.Timeout == 0 {
		c.Sensor.Timeout = def.Sensor.Timeout
	}

	if c.Exchange.Driver == "" {
		c.Exchange.Driver = def.Exchange.Driver
	}
	if c.Exchange.TopicPrefix == "" {
		c.Exchange.TopicPrefix = def.Exchange.TopicPrefix
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = def.Exchange.Timeout
	}

	if c.Cycle.Sleep == 0 {
		c.Cycle.Sleep = def.Cycle.Sleep
	}

	if c.Mock.TimeScale == 0 {
		c.Mock.TimeScale = def.Mock.TimeScale
	}
}
