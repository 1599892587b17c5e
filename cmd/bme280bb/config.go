// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/GermanBionicSystems/bbspi/bme280"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Pin backends.
const (
	backendPeriph = "periph"
	backendRPIO   = "rpio"
)

// Config is the content of the YAML configuration file.
type Config struct {
	Pins    PinsConfig    `yaml:"Pins"`
	Bus     BusConfig     `yaml:"Bus"`
	Sensor  SensorConfig  `yaml:"Sensor"`
	Logging LoggingConfig `yaml:"Logging"`
}

// PinsConfig names the GPIO lines of the bus.
type PinsConfig struct {
	// Backend is "periph" for periph.io host drivers or "rpio" for
	// memory-mapped access through go-rpio.
	Backend string `yaml:"Backend"`
	CLK     string `yaml:"CLK"`
	MOSI    string `yaml:"MOSI"`
	MISO    string `yaml:"MISO"`
	CS      string `yaml:"CS"`
}

// BusConfig holds the SPI link parameters.
type BusConfig struct {
	// Frequency in Hz. Advisory: the bus runs as fast as the pins toggle, up
	// to its fixed delays.
	Frequency int64 `yaml:"Frequency"`
	Mode      int   `yaml:"Mode"`
}

// SensorConfig holds the BME280 acquisition setup.
type SensorConfig struct {
	Mode             string        `yaml:"Mode"`
	Temperature      string        `yaml:"Temperature"`
	Pressure         string        `yaml:"Pressure"`
	Humidity         string        `yaml:"Humidity"`
	Filter           string        `yaml:"Filter"`
	Standby          string        `yaml:"Standby"`
	CalibrationPolls int           `yaml:"CalibrationPolls"`
	SeaLevelHPa      float64       `yaml:"SeaLevelHPa"`
	Interval         time.Duration `yaml:"Interval"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
}

func defaultConfig() *Config {
	return &Config{
		Pins: PinsConfig{
			Backend: backendPeriph,
			CLK:     "GPIO16",
			MOSI:    "GPIO21",
			MISO:    "GPIO20",
			CS:      "GPIO26",
		},
		Bus: BusConfig{Frequency: 100000, Mode: 0},
		Sensor: SensorConfig{
			Mode:             "normal",
			Temperature:      "x16",
			Pressure:         "x16",
			Humidity:         "x16",
			Filter:           "off",
			Standby:          "0.5ms",
			CalibrationPolls: bme280.DefaultOpts.CalibrationPolls,
			SeaLevelHPa:      bme280.StandardSeaLevel,
			Interval:         5 * time.Second,
		},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
	}
}

// LoadConfig decodes a YAML configuration over the defaults and validates
// it. Unknown keys are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	c := defaultConfig()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// readConfig loads the file at path, or the defaults when path is empty.
func readConfig(path string) (*Config, error) {
	if path == "" {
		c := defaultConfig()
		return c, c.validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

func (c *Config) validate() error {
	switch c.Pins.Backend {
	case backendPeriph, backendRPIO:
	default:
		return fmt.Errorf("config: unknown pin backend %q", c.Pins.Backend)
	}
	for name, v := range map[string]string{"CLK": c.Pins.CLK, "MOSI": c.Pins.MOSI, "MISO": c.Pins.MISO, "CS": c.Pins.CS} {
		if v == "" {
			return fmt.Errorf("config: pin %s is required", name)
		}
	}
	if c.Bus.Frequency <= 0 {
		return fmt.Errorf("config: invalid bus frequency %d", c.Bus.Frequency)
	}
	if c.Bus.Mode < 0 || c.Bus.Mode > 3 {
		return fmt.Errorf("config: invalid SPI mode %d", c.Bus.Mode)
	}
	if _, err := c.Sensor.sampling(); err != nil {
		return err
	}
	if c.Sensor.SeaLevelHPa <= 0 {
		return fmt.Errorf("config: invalid sea level pressure %g", c.Sensor.SeaLevelHPa)
	}
	if c.Sensor.Interval <= 0 {
		return fmt.Errorf("config: invalid interval %s", c.Sensor.Interval)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// frequency returns the bus frequency.
func (b *BusConfig) frequency() physic.Frequency {
	return physic.Frequency(b.Frequency) * physic.Hertz
}

// mode returns the bus SPI mode.
func (b *BusConfig) mode() spi.Mode {
	return spi.Mode(b.Mode)
}

// opts returns the driver options.
func (s *SensorConfig) opts() (*bme280.Opts, error) {
	sampling, err := s.sampling()
	if err != nil {
		return nil, err
	}
	return &bme280.Opts{Sampling: sampling, CalibrationPolls: s.CalibrationPolls}, nil
}

func (s *SensorConfig) sampling() (bme280.Sampling, error) {
	var out bme280.Sampling
	var err error
	if out.Mode, err = parseMode(s.Mode); err != nil {
		return out, err
	}
	if out.Temperature, err = parseOversampling(s.Temperature); err != nil {
		return out, err
	}
	if out.Pressure, err = parseOversampling(s.Pressure); err != nil {
		return out, err
	}
	if out.Humidity, err = parseOversampling(s.Humidity); err != nil {
		return out, err
	}
	if out.Filter, err = parseFilter(s.Filter); err != nil {
		return out, err
	}
	if out.Standby, err = parseStandby(s.Standby); err != nil {
		return out, err
	}
	return out, nil
}

func parseMode(s string) (bme280.Mode, error) {
	switch strings.ToLower(s) {
	case "sleep":
		return bme280.Sleep, nil
	case "forced":
		return bme280.Forced, nil
	case "normal":
		return bme280.Normal, nil
	}
	return 0, fmt.Errorf("config: unknown mode %q", s)
}

var oversampling = map[string]bme280.Oversampling{
	"off": bme280.Off,
	"x1":  bme280.O1x,
	"x2":  bme280.O2x,
	"x4":  bme280.O4x,
	"x8":  bme280.O8x,
	"x16": bme280.O16x,
}

func parseOversampling(s string) (bme280.Oversampling, error) {
	if o, ok := oversampling[strings.ToLower(s)]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("config: unknown oversampling %q", s)
}

var filters = map[string]bme280.Filter{
	"off": bme280.NoFilter,
	"x2":  bme280.F2,
	"x4":  bme280.F4,
	"x8":  bme280.F8,
	"x16": bme280.F16,
}

func parseFilter(s string) (bme280.Filter, error) {
	if f, ok := filters[strings.ToLower(s)]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("config: unknown filter %q", s)
}

func parseStandby(s string) (bme280.Standby, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid standby %q", s)
	}
	for sb := bme280.S0ms5; sb <= bme280.S20ms; sb++ {
		if sb.Duration() == d {
			return sb, nil
		}
	}
	return 0, fmt.Errorf("config: unsupported standby %s", d)
}
