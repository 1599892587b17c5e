// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Conn is one device on a Port. It implements spi.Conn and spi.Pins.
//
// Each transaction reapplies the device's mode to the Port, so devices with
// different modes can share a bus.
type Conn struct {
	port *Port
	cs   gpio.PinOut
	cfg  Config
}

func (c *Conn) String() string {
	if c.cfg.Mode&spi.NoCS != 0 {
		return c.port.String()
	}
	return fmt.Sprintf("%s/CS=%s", c.port, c.cs)
}

// Duplex implements conn.Conn.
func (c *Conn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx implements conn.Conn.
//
// The chip select is asserted for the whole transfer. See Port.Tx for how
// empty buffers are handled.
func (c *Conn) Tx(w, r []byte) error {
	return c.TxPackets([]spi.Packet{{W: w, R: r}})
}

// TxPackets implements spi.Conn.
//
// The chip select is released after each packet unless KeepCS is set, and
// always after the last one.
func (c *Conn) TxPackets(pkts []spi.Packet) error {
	for i := range pkts {
		if b := pkts[i].BitsPerWord; b != 0 && b != wordBits {
			return fmt.Errorf("%w: got %d", ErrBitsPerWord, b)
		}
		if err := checkTx(pkts[i].W, pkts[i].R); err != nil {
			return err
		}
	}
	p := c.port
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.cfg != c.cfg {
		if err := p.configure(c.cfg); err != nil {
			return err
		}
	}
	selected := false
	for i, pkt := range pkts {
		if !selected {
			if err := c.assert(gpio.Low); err != nil {
				return err
			}
			selected = true
		}
		err := c.tx(pkt.W, pkt.R)
		if err != nil || !pkt.KeepCS || i == len(pkts)-1 {
			if err2 := c.assert(gpio.High); err == nil {
				err = err2
			}
			selected = false
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// tx must be called with the port lock held.
func (c *Conn) tx(w, r []byte) error {
	p := c.port
	switch {
	case len(r) == 0:
		discard := make([]byte, len(w))
		return p.transfer(w, All(w), discard, All(discard))
	case len(w) == 0:
		zeros := make([]byte, len(r))
		return p.transfer(zeros, All(zeros), r, All(r))
	default:
		return p.transfer(w, All(w), r, All(r))
	}
}

// assert drives the chip select line, unless the device has none.
func (c *Conn) assert(l gpio.Level) error {
	if c.cfg.Mode&spi.NoCS != 0 {
		return nil
	}
	if err := c.cs.Out(l); err != nil {
		return fmt.Errorf("bitbang: CS %s: %w", c.cs, err)
	}
	return nil
}

func checkTx(w, r []byte) error {
	if len(w) != 0 && len(r) != 0 && len(w) != len(r) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(w), len(r))
	}
	return nil
}

// Config returns the device's link parameters.
func (c *Conn) Config() Config {
	return c.cfg
}

// CLK implements spi.Pins.
func (c *Conn) CLK() gpio.PinOut {
	return c.port.clk
}

// MOSI implements spi.Pins.
func (c *Conn) MOSI() gpio.PinOut {
	return c.port.mosi
}

// MISO implements spi.Pins.
func (c *Conn) MISO() gpio.PinIn {
	return c.port.miso
}

// CS implements spi.Pins.
func (c *Conn) CS() gpio.PinOut {
	if c.cfg.Mode&spi.NoCS != 0 {
		return gpio.INVALID
	}
	return c.cs
}

var _ spi.Conn = &Conn{}
var _ spi.Pins = &Conn{}
