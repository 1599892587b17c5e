// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package regspi

import (
	"fmt"
	"strings"
	"testing"

	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
)

func newPlayback(t *testing.T, ops []conntest.IO) (*Dev, *spitest.Playback) {
	pb := &spitest.Playback{Playback: conntest.Playback{Ops: ops, DontPanic: true}}
	c, err := pb.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		t.Fatal(err)
	}
	return New(c), pb
}

func TestReads(t *testing.T) {
	d, pb := newPlayback(t, []conntest.IO{
		{W: []byte{0xD0, 0}, R: []byte{0, 0x60}},
		{W: []byte{0x88, 0, 0}, R: []byte{0, 0x70, 0x6B}},
		{W: []byte{0x8A, 0, 0}, R: []byte{0, 0x18, 0xFC}},
		{W: []byte{0xFD, 0, 0}, R: []byte{0, 0x76, 0xD6}},
		{W: []byte{0xFD, 0, 0}, R: []byte{0, 0xFC, 0x18}},
		{W: []byte{0xFA, 0, 0, 0}, R: []byte{0, 0x7E, 0xED, 0x00}},
	})
	if v, err := d.ReadU8(0xD0); err != nil || v != 0x60 {
		t.Errorf("ReadU8() = 0x%02x, %v", v, err)
	}
	if v, err := d.ReadU16LE(0x88); err != nil || v != 27504 {
		t.Errorf("ReadU16LE() = %d, %v", v, err)
	}
	if v, err := d.ReadS16LE(0x8A); err != nil || v != -1000 {
		t.Errorf("ReadS16LE() = %d, %v", v, err)
	}
	if v, err := d.ReadU16(0xFD); err != nil || v != 30422 {
		t.Errorf("ReadU16() = %d, %v", v, err)
	}
	if v, err := d.ReadS16(0xFD); err != nil || v != -1000 {
		t.Errorf("ReadS16() = %d, %v", v, err)
	}
	if v, err := d.ReadU24(0xFA); err != nil || v != 0x7EED00 {
		t.Errorf("ReadU24() = 0x%06x, %v", v, err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestWrites(t *testing.T) {
	d, pb := newPlayback(t, []conntest.IO{
		{W: []byte{0x60, 0xB6}},
		{W: []byte{0x74, 0xB7}},
		{W: []byte{0xF4, 0}, R: []byte{0, 0xB7}},
		{W: []byte{0x74, 0xB4}},
	})
	if err := d.WriteU8(0xE0, 0xB6); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteU8(0x74, 0xB7); err != nil {
		t.Fatal(err)
	}
	if err := d.UpdateU8(0xF4, 0x03, 0x00); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestError(t *testing.T) {
	d, _ := newPlayback(t, nil)
	if _, err := d.ReadU8(0xD0); err == nil {
		t.Error("expected error")
	}
	if err := d.WriteU8(0xE0, 0xB6); err == nil {
		t.Error("expected error")
	}
}

func TestDebug(t *testing.T) {
	d, _ := newPlayback(t, []conntest.IO{{W: []byte{0x72, 0x05}}})
	var lines []string
	d.EnableDebug(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	if err := d.WriteU8(0xF2, 0x05); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "0xf2") {
		t.Errorf("debug output = %q", lines)
	}
	d.EnableDebug(nil)
	if d.debug == nil {
		t.Error("nil DebugF must disable tracing, not panic")
	}
}
