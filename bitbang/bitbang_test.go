// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// tracePin is a gpiotest.Pin that appends every Out call to a shared log and
// optionally notifies a listener.
type tracePin struct {
	gpiotest.Pin
	log   *[]string
	onOut func(gpio.Level)
}

func (t *tracePin) Out(l gpio.Level) error {
	if err := t.Pin.Out(l); err != nil {
		return err
	}
	if t.log != nil {
		*t.log = append(*t.log, fmt.Sprintf("%s=%s", t.N, l))
	}
	if t.onOut != nil {
		t.onOut(l)
	}
	return nil
}

func noDelay(time.Duration) {}

// newLoopback returns a Port whose MOSI and MISO are the same pin, so every
// byte written is read back.
func newLoopback(t *testing.T, log *[]string) *Port {
	clk := &tracePin{Pin: gpiotest.Pin{N: "CLK"}, log: log}
	data := &tracePin{Pin: gpiotest.Pin{N: "DATA"}, log: log}
	p, err := New(clk, data, data)
	if err != nil {
		t.Fatal(err)
	}
	p.delay = noDelay
	if log != nil {
		*log = (*log)[:0]
	}
	return p
}

func TestNew(t *testing.T) {
	clk := &gpiotest.Pin{N: "CLK", L: gpio.High}
	mosi := &gpiotest.Pin{N: "MOSI", L: gpio.High}
	miso := &gpiotest.Pin{N: "MISO"}
	p, err := New(clk, mosi, miso)
	if err != nil {
		t.Fatal(err)
	}
	if clk.L != gpio.Low {
		t.Error("CLK must idle low in mode 0")
	}
	if mosi.L != gpio.Low {
		t.Error("MOSI must start low")
	}
	if miso.P != gpio.PullUp {
		t.Errorf("MISO pull = %s, expected %s", miso.P, gpio.PullUp)
	}
	if c := p.Config(); c != DefaultConfig {
		t.Errorf("config = %+v, expected %+v", c, DefaultConfig)
	}
	if p.CLK() != clk || p.MOSI() != mosi || p.MISO() != miso || p.CS() != gpio.INVALID {
		t.Error("unexpected pins")
	}
	if s := p.String(); s == "" {
		t.Error("empty String()")
	}
	if _, err := New(nil, mosi, miso); err == nil {
		t.Error("expected error for missing CLK")
	}
}

func TestConfigure(t *testing.T) {
	p := newLoopback(t, nil)
	if err := p.Configure(physic.MegaHertz, spi.Mode2, 8); err != nil {
		t.Fatal(err)
	}
	if p.clk.(*tracePin).L != gpio.High {
		t.Error("CLK must idle high with CPOL=1")
	}
	tests := []struct {
		mode spi.Mode
		bits int
		f    physic.Frequency
		err  error
	}{
		{spi.Mode0, 9, physic.MegaHertz, ErrBitsPerWord},
		{spi.Mode0 | spi.HalfDuplex, 8, physic.MegaHertz, ErrUnsupportedMode},
		{spi.Mode0 | spi.LSBFirst, 8, physic.MegaHertz, ErrUnsupportedMode},
		{spi.Mode0, 8, 0, nil},
	}
	for _, test := range tests {
		err := p.Configure(test.f, test.mode, test.bits)
		if err == nil {
			t.Errorf("Configure(%s, %s, %d) succeeded", test.f, test.mode, test.bits)
			continue
		}
		if test.err != nil && !errors.Is(err, test.err) {
			t.Errorf("Configure(%s, %s, %d) = %v, expected %v", test.f, test.mode, test.bits, err, test.err)
		}
	}
	// A failed Configure leaves the previous parameters.
	if c := p.Config(); c.Mode != spi.Mode2 {
		t.Errorf("mode = %s, expected %s", c.Mode, spi.Mode2)
	}
}

func TestFrequency(t *testing.T) {
	p := newLoopback(t, nil)
	if f := p.Frequency(); f != 100*physic.KiloHertz {
		t.Errorf("Frequency() = %s, expected 100kHz", f)
	}
	if err := p.LimitSpeed(10 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if f := p.Config().Freq; f != 10*physic.KiloHertz {
		t.Errorf("limited Freq = %s", f)
	}
	if err := p.LimitSpeed(0); err == nil {
		t.Error("expected error")
	}
}

func TestLoopbackAllModes(t *testing.T) {
	w := []byte{0x00, 0xFF, 0xA5, 0x5A, 0x01, 0x80, 0x3C}
	for _, mode := range []spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3} {
		p := newLoopback(t, nil)
		if err := p.Configure(physic.MegaHertz, mode, 8); err != nil {
			t.Fatal(err)
		}
		r := make([]byte, len(w))
		if err := p.Tx(w, r); err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if !bytes.Equal(w, r) {
			t.Errorf("%s: read % x, expected % x", mode, r, w)
		}
		if l := p.clk.(*tracePin).L; l != p.cfg.idle() {
			t.Errorf("%s: CLK left at %s", mode, l)
		}
	}
}

func TestBitOrderMode0(t *testing.T) {
	var log []string
	p := newLoopback(t, &log)
	if err := p.Write([]byte{0xA0}, Span{0, 1}); err != nil {
		t.Fatal(err)
	}
	// Each bit: set data, raise clock, lower clock. MSB first.
	var expected []string
	for _, b := range []string{"High", "Low", "High", "Low", "Low", "Low", "Low", "Low"} {
		expected = append(expected, "DATA="+b, "CLK=High", "CLK=Low")
	}
	if len(log) != len(expected) {
		t.Fatalf("got %d pin writes, expected %d: %v", len(log), len(expected), log)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Errorf("pin write #%d = %s, expected %s", i, log[i], expected[i])
		}
	}
}

func TestBitOrderMode1(t *testing.T) {
	var log []string
	p := newLoopback(t, &log)
	if err := p.Configure(physic.MegaHertz, spi.Mode1, 8); err != nil {
		t.Fatal(err)
	}
	log = log[:0]
	if err := p.Write([]byte{0x01}, Span{0, 1}); err != nil {
		t.Fatal(err)
	}
	// Each bit: raise clock, set data, lower clock.
	if len(log) != 24 {
		t.Fatalf("got %d pin writes: %v", len(log), log)
	}
	if log[0] != "CLK=High" || log[1] != "DATA=Low" || log[2] != "CLK=Low" {
		t.Errorf("first bit = %v", log[:3])
	}
	if log[22] != "DATA=High" {
		t.Errorf("last bit = %s", log[22])
	}
}

func TestSpans(t *testing.T) {
	p := newLoopback(t, nil)
	w := []byte{1, 2, 3, 4, 5}
	r := []byte{9, 9, 9, 9, 9, 9}
	if err := p.WriteReadInto(w, Span{1, 4}, r, Span{2, 5}); err != nil {
		t.Fatal(err)
	}
	if expected := []byte{9, 9, 2, 3, 4, 9}; !bytes.Equal(r, expected) {
		t.Errorf("read % x, expected % x", r, expected)
	}

	b := []byte{0, 0, 0}
	if err := p.ReadInto(b, Span{1, 3}, 0x42); err != nil {
		t.Fatal(err)
	}
	if expected := []byte{0, 0x42, 0x42}; !bytes.Equal(b, expected) {
		t.Errorf("ReadInto = % x, expected % x", b, expected)
	}

	if err := p.WriteReadInto(w, Span{0, 2}, r, Span{0, 3}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if err := p.WriteReadInto(w, Span{3, 7}, r, Span{0, 4}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	// Range is checked before length.
	if err := p.WriteReadInto(w, Span{0, 9}, r, Span{0, 1}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := p.Write(w, Span{-1, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := p.ReadInto(b, Span{2, 1}, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := p.Tx([]byte{1, 2}, []byte{1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestEmptyTransferNoToggle(t *testing.T) {
	var log []string
	p := newLoopback(t, &log)
	if err := p.WriteReadInto(nil, Span{}, nil, Span{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Write([]byte{1, 2}, Span{1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := p.Tx(nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(log) != 0 {
		t.Errorf("empty transfers touched pins: %v", log)
	}
}

func TestClose(t *testing.T) {
	p := newLoopback(t, nil)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Tx([]byte{1}, []byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := p.Configure(physic.MegaHertz, spi.Mode0, 8); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
