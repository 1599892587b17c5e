// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import (
	"fmt"
	"time"
)

// Mode is the power mode of the sensor.
type Mode uint8

// Possible power modes.
const (
	// Sleep does no measurement. Registers keep the last results.
	Sleep Mode = 0
	// Forced does one measurement then returns to Sleep. Every read in this
	// mode triggers a new measurement.
	Forced Mode = 1
	// Normal measures continuously, idling Standby between measurements.
	Normal Mode = 3
)

func (m Mode) String() string {
	switch m {
	case Sleep:
		return "Sleep"
	case Forced:
		return "Forced"
	case Normal:
		return "Normal"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Oversampling is the number of samples averaged for one measurement.
//
// Off disables the measurement; the data registers then hold the skipped
// sentinel and the corresponding reading is reported as unavailable.
type Oversampling uint8

// Possible oversampling values.
const (
	Off  Oversampling = 0
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 3
	O8x  Oversampling = 4
	O16x Oversampling = 5
)

func (o Oversampling) String() string {
	if o == Off {
		return "Off"
	}
	if o > O16x {
		return fmt.Sprintf("Oversampling(%d)", uint8(o))
	}
	return fmt.Sprintf("%dx", o.count())
}

// count returns the number of samples, 0 when Off.
func (o Oversampling) count() int {
	if o == Off {
		return 0
	}
	return 1 << (o - 1)
}

// Filter is the IIR filter coefficient applied to pressure and temperature.
type Filter uint8

// Possible filter values.
const (
	NoFilter Filter = 0
	F2       Filter = 1
	F4       Filter = 2
	F8       Filter = 3
	F16      Filter = 4
)

func (f Filter) String() string {
	if f == NoFilter {
		return "NoFilter"
	}
	if f > F16 {
		return fmt.Sprintf("Filter(%d)", uint8(f))
	}
	return fmt.Sprintf("F%d", 1<<f)
}

// Standby is the idle time between measurements in Normal mode.
type Standby uint8

// Possible standby values. The encoding is not monotonic.
const (
	S0ms5  Standby = 0
	S62ms5 Standby = 1
	S125ms Standby = 2
	S250ms Standby = 3
	S500ms Standby = 4
	S1s    Standby = 5
	S10ms  Standby = 6
	S20ms  Standby = 7
)

var standbyDurations = [...]time.Duration{
	500 * time.Microsecond,
	62500 * time.Microsecond,
	125 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	10 * time.Millisecond,
	20 * time.Millisecond,
}

// Duration returns the standby time.
func (s Standby) Duration() time.Duration {
	if int(s) >= len(standbyDurations) {
		return 0
	}
	return standbyDurations[s]
}

func (s Standby) String() string {
	if int(s) >= len(standbyDurations) {
		return fmt.Sprintf("Standby(%d)", uint8(s))
	}
	return s.Duration().String()
}

// Sampling is the acquisition setup of the sensor.
type Sampling struct {
	Mode        Mode
	Temperature Oversampling
	Pressure    Oversampling
	Humidity    Oversampling
	Filter      Filter
	Standby     Standby
}

// DefaultSampling is continuous measurement at the highest oversampling,
// unfiltered, with the shortest standby.
var DefaultSampling = Sampling{
	Mode:        Normal,
	Temperature: O16x,
	Pressure:    O16x,
	Humidity:    O16x,
	Filter:      NoFilter,
	Standby:     S0ms5,
}

func (s *Sampling) validate() error {
	switch {
	case s.Mode != Sleep && s.Mode != Forced && s.Mode != Normal:
		return fmt.Errorf("%w: mode %s", ErrInvalidSampling, s.Mode)
	case s.Temperature > O16x:
		return fmt.Errorf("%w: temperature %s", ErrInvalidSampling, s.Temperature)
	case s.Pressure > O16x:
		return fmt.Errorf("%w: pressure %s", ErrInvalidSampling, s.Pressure)
	case s.Humidity > O16x:
		return fmt.Errorf("%w: humidity %s", ErrInvalidSampling, s.Humidity)
	case s.Filter > F16:
		return fmt.Errorf("%w: filter %s", ErrInvalidSampling, s.Filter)
	case s.Standby > S20ms:
		return fmt.Errorf("%w: standby %s", ErrInvalidSampling, s.Standby)
	}
	return nil
}

// ctrlHum is the value of register 0xF2.
func (s *Sampling) ctrlHum() byte {
	return byte(s.Humidity)
}

// config is the value of register 0xF5. SPI 3-wire mode is left disabled.
func (s *Sampling) config() byte {
	return byte(s.Standby)<<5 | byte(s.Filter)<<2
}

// ctrlMeas is the value of register 0xF4.
func (s *Sampling) ctrlMeas() byte {
	return byte(s.Temperature)<<5 | byte(s.Pressure)<<2 | byte(s.Mode)
}

// measurementTime returns the maximum duration of one measurement, per
// datasheet appendix B.
func (s *Sampling) measurementTime() time.Duration {
	us := 1250 + 2300*s.Temperature.count()
	if n := s.Pressure.count(); n != 0 {
		us += 2300*n + 575
	}
	if n := s.Humidity.count(); n != 0 {
		us += 2300*n + 575
	}
	return time.Duration(us) * time.Microsecond
}
