package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models coverplan.yml.
type Config struct {
	Window struct {
		Days int `yaml:"days"`
	} `yaml:"window"`
	Report struct {
		IncludeCovered bool `yaml:"include_covered"`
		RegionsFirst   bool `yaml:"regions_first"`
	} `yaml:"report"`
	Calendar struct {
		// HolidayCountryCodes maps roster country codes to the codes used by
		// the public holiday calendars, overriding the built-in table.
		HolidayCountryCodes map[string]string `yaml:"holiday_country_codes"`
	} `yaml:"calendar"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "coverplan.yml")
}

// Load reads and validates config from the workspace, falling back to the
// default config when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Window.Days <= 0 {
		return fmt.Errorf("config.window.days must be positive")
	}
	for code, mapped := range c.Calendar.HolidayCountryCodes {
		if code == "" || mapped == "" {
			return fmt.Errorf("config.calendar.holiday_country_codes contains an empty mapping")
		}
	}
	return nil
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML for writing to a new workspace.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `window:
  days: 30

report:
  include_covered: false
  regions_first: true

calendar:
  holiday_country_codes:
    auh: ae
    qar: qatari
    pol: polish
    bru: belgian
    spa: spain
    usa: usa
`
