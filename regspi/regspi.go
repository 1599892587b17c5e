// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package regspi accesses the 8 bit registers of SPI devices that flag a read
// by setting bit 7 of the address byte, like the Bosch and InvenSense sensors.
//
// Every call is a single transaction on the underlying spi.Conn. The first
// byte read back is the dummy clocked in while the address is sent; it is
// discarded.
package regspi

import (
	"fmt"

	"periph.io/x/conn/v3/spi"
)

const readFlag = 0x80

// DebugF the debug function type.
type DebugF func(string, ...interface{})

// Dev is the register interface of a device.
type Dev struct {
	c     spi.Conn
	debug DebugF
}

// New returns a Dev on c.
func New(c spi.Conn) *Dev {
	return &Dev{c: c, debug: noop}
}

// EnableDebug sets the function that traces every register access. nil
// disables tracing.
func (d *Dev) EnableDebug(f DebugF) {
	if f == nil {
		f = noop
	}
	d.debug = f
}

func (d *Dev) String() string {
	return d.c.String()
}

// Read fills b with the registers starting at addr, in one burst.
func (d *Dev) Read(addr byte, b []byte) error {
	w := make([]byte, len(b)+1)
	r := make([]byte, len(b)+1)
	w[0] = addr | readFlag
	if err := d.c.Tx(w, r); err != nil {
		return fmt.Errorf("regspi: read 0x%02x: %w", addr, err)
	}
	copy(b, r[1:])
	d.debug("read 0x%02x: % x", addr, b)
	return nil
}

// ReadU8 reads one register.
func (d *Dev) ReadU8(addr byte) (uint8, error) {
	var b [1]byte
	err := d.Read(addr, b[:])
	return b[0], err
}

// ReadU16 reads two registers, most significant byte first.
func (d *Dev) ReadU16(addr byte) (uint16, error) {
	var b [2]byte
	err := d.Read(addr, b[:])
	return uint16(b[0])<<8 | uint16(b[1]), err
}

// ReadU16LE reads two registers, least significant byte first.
func (d *Dev) ReadU16LE(addr byte) (uint16, error) {
	var b [2]byte
	err := d.Read(addr, b[:])
	return uint16(b[1])<<8 | uint16(b[0]), err
}

// ReadS16 is ReadU16 interpreted as two's complement.
func (d *Dev) ReadS16(addr byte) (int16, error) {
	v, err := d.ReadU16(addr)
	return int16(v), err
}

// ReadS16LE is ReadU16LE interpreted as two's complement.
func (d *Dev) ReadS16LE(addr byte) (int16, error) {
	v, err := d.ReadU16LE(addr)
	return int16(v), err
}

// ReadU24 reads three registers, most significant byte first.
func (d *Dev) ReadU24(addr byte) (uint32, error) {
	var b [3]byte
	err := d.Read(addr, b[:])
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), err
}

// WriteU8 writes one register.
func (d *Dev) WriteU8(addr, v byte) error {
	d.debug("write 0x%02x: %02x", addr, v)
	if err := d.c.Tx([]byte{addr &^ readFlag, v}, nil); err != nil {
		return fmt.Errorf("regspi: write 0x%02x: %w", addr, err)
	}
	return nil
}

// UpdateU8 replaces the bits selected by mask in one register, leaving the
// others untouched.
func (d *Dev) UpdateU8(addr, mask, v byte) error {
	cur, err := d.ReadU8(addr)
	if err != nil {
		return err
	}
	return d.WriteU8(addr, cur&^mask|v&mask)
}

func noop(string, ...interface{}) {}
