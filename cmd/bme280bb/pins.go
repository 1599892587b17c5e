// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/GermanBionicSystems/bbspi/rpiogpio"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// busPins are the GPIO lines of the bus, from either backend.
type busPins struct {
	clk, mosi, miso, cs gpio.PinIO
	close               func() error
}

// openPins initializes the configured backend and looks up the pins.
func openPins(c *PinsConfig) (*busPins, error) {
	var lookup func(string) (gpio.PinIO, error)
	p := &busPins{close: func() error { return nil }}
	switch c.Backend {
	case backendPeriph:
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		lookup = func(name string) (gpio.PinIO, error) {
			if pin := gpioreg.ByName(name); pin != nil {
				return pin, nil
			}
			return nil, fmt.Errorf("no GPIO pin named %q", name)
		}
	case backendRPIO:
		if err := rpiogpio.Open(); err != nil {
			return nil, err
		}
		p.close = rpiogpio.Close
		lookup = func(name string) (gpio.PinIO, error) {
			return rpiogpio.ByName(name)
		}
	default:
		return nil, fmt.Errorf("unknown pin backend %q", c.Backend)
	}
	for _, x := range []struct {
		dst  *gpio.PinIO
		name string
	}{{&p.clk, c.CLK}, {&p.mosi, c.MOSI}, {&p.miso, c.MISO}, {&p.cs, c.CS}} {
		pin, err := lookup(x.name)
		if err != nil {
			p.close()
			return nil, err
		}
		*x.dst = pin
	}
	return p, nil
}
