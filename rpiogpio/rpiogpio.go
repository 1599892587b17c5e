// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rpiogpio exposes Raspberry Pi GPIO pins driven by go-rpio as
// periph gpio.PinIO, so they can be used with bitbang.Port without the periph
// host drivers.
//
// go-rpio writes to the GPIO registers through /dev/gpiomem, which makes pin
// access noticeably cheaper than sysfs. Open must be called before any Pin is
// used.
package rpiogpio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrNotImplemented is returned by PWM.
var ErrNotImplemented = errors.New("rpiogpio: not implemented")

// numPins is the number of GPIO lines on the BCM283x header.
const numPins = 28

// edgePoll is the interval WaitForEdge checks the event detect register at.
const edgePoll = time.Millisecond

// Open maps the GPIO registers.
func Open() error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("rpiogpio: %w", err)
	}
	return nil
}

// Close unmaps the GPIO registers.
func Close() error {
	return rpio.Close()
}

// Pin is one BCM GPIO line. It implements gpio.PinIO.
type Pin struct {
	pin    rpio.Pin
	pull   gpio.Pull
	output bool
}

// New returns the pin with the given BCM number.
func New(number int) (*Pin, error) {
	if number < 0 || number >= numPins {
		return nil, fmt.Errorf("rpiogpio: invalid pin number %d", number)
	}
	return &Pin{pin: rpio.Pin(number), pull: gpio.PullNoChange}, nil
}

// ByName returns the pin named "GPIO<n>" or just "<n>".
func ByName(name string) (*Pin, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(name), "GPIO"))
	if err != nil {
		return nil, fmt.Errorf("rpiogpio: invalid pin name %q", name)
	}
	return New(n)
}

func (p *Pin) String() string {
	return p.Name()
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return "GPIO" + strconv.Itoa(int(p.pin))
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return int(p.pin)
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	if p.output {
		return "Out"
	}
	return "In"
}

// In implements gpio.PinIn.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	e, err := toEdge(edge)
	if err != nil {
		return err
	}
	p.pin.Input()
	p.output = false
	switch pull {
	case gpio.PullUp:
		p.pin.PullUp()
	case gpio.PullDown:
		p.pin.PullDown()
	case gpio.Float:
		p.pin.PullOff()
	case gpio.PullNoChange:
	default:
		return fmt.Errorf("rpiogpio: %s: invalid pull %s", p, pull)
	}
	if pull != gpio.PullNoChange {
		p.pull = pull
	}
	p.pin.Detect(e)
	return nil
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	return toLevel(p.pin.Read())
}

// WaitForEdge implements gpio.PinIn. A negative timeout waits forever.
//
// go-rpio has no interrupt support, so the event register is polled.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if p.pin.EdgeDetected() {
			return true
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(edgePoll)
	}
}

// Pull implements gpio.PinIn. It returns the last pull set by In.
func (p *Pin) Pull() gpio.Pull {
	return p.pull
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	// GPIO0 to GPIO8 are pulled up at reset, the rest down.
	if p.pin <= 8 {
		return gpio.PullUp
	}
	return gpio.PullDown
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if !p.output {
		p.pin.Output()
		p.output = true
	}
	p.pin.Write(toState(l))
	return nil
}

// PWM is not implemented.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return ErrNotImplemented
}

func toLevel(s rpio.State) gpio.Level {
	return s == rpio.High
}

func toState(l gpio.Level) rpio.State {
	if l {
		return rpio.High
	}
	return rpio.Low
}

func toEdge(e gpio.Edge) (rpio.Edge, error) {
	switch e {
	case gpio.NoEdge:
		return rpio.NoEdge, nil
	case gpio.RisingEdge:
		return rpio.RiseEdge, nil
	case gpio.FallingEdge:
		return rpio.FallEdge, nil
	case gpio.BothEdges:
		return rpio.AnyEdge, nil
	default:
		return rpio.NoEdge, fmt.Errorf("rpiogpio: invalid edge %s", e)
	}
}

var _ gpio.PinIO = &Pin{}
