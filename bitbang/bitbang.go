// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang implements an SPI master on three GPIO lines (CLK, MOSI and
// MISO) plus one chip select line per attached device.
//
// No SPI controller is involved. Every bit is clocked by toggling the CLK pin
// and holding each clock level for a fixed delay, so the requested frequency
// is advisory. Port.Frequency returns the rate the fixed delays produce; the
// real rate is lower still, as it also includes the cost of the GPIO calls.
//
// All four SPI modes are supported. Data is always 8 bits per word, most
// significant bit first.
package bitbang

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	// Time the clock line is held at its idle level, then at its active level,
	// for each bit.
	sclkIdleTime   = 5 * time.Microsecond
	sclkActiveTime = 5 * time.Microsecond

	wordBits = 8
)

var (
	// ErrOutOfRange is returned when a Span does not fit its buffer.
	ErrOutOfRange = errors.New("bitbang: span out of range")
	// ErrLengthMismatch is returned when the write and read sides of a
	// transfer have different lengths.
	ErrLengthMismatch = errors.New("bitbang: write and read lengths differ")
	// ErrBitsPerWord is returned for any word size other than 8 bits.
	ErrBitsPerWord = errors.New("bitbang: only 8 bits per word is supported")
	// ErrUnsupportedMode is returned for HalfDuplex, LSBFirst or unknown mode
	// flags.
	ErrUnsupportedMode = errors.New("bitbang: unsupported mode")
	// ErrClosed is returned by any operation on a closed Port.
	ErrClosed = errors.New("bitbang: port closed")
)

// Config holds the link parameters of the bus.
type Config struct {
	// Freq is the requested clock rate. See Port.Frequency for the rate the
	// bus actually runs at.
	Freq physic.Frequency
	// Mode selects clock polarity and phase. spi.NoCS is the only flag
	// accepted.
	Mode spi.Mode
	// Bits per word. Must be 8.
	Bits int
}

// DefaultConfig is 100kHz, mode 0, 8 bits per word.
var DefaultConfig = Config{Freq: 100 * physic.KiloHertz, Mode: spi.Mode0, Bits: wordBits}

func (c *Config) validate() error {
	if c.Bits != wordBits {
		return fmt.Errorf("%w: got %d", ErrBitsPerWord, c.Bits)
	}
	if c.Mode&^(spi.Mode3|spi.NoCS) != 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, c.Mode)
	}
	if c.Freq <= 0 {
		return fmt.Errorf("bitbang: invalid frequency %s", c.Freq)
	}
	return nil
}

// idle returns the resting level of CLK, which is the clock polarity.
func (c *Config) idle() gpio.Level {
	return c.Mode&spi.Mode2 != 0
}

// sampleOnTrailing reports whether MISO is sampled on the trailing clock edge
// (CPHA=1) rather than the leading one.
func (c *Config) sampleOnTrailing() bool {
	return c.Mode&spi.Mode1 != 0
}

// Span is the half-open range [Start, End) of a buffer.
type Span struct {
	Start, End int
}

// All returns the Span covering all of b.
func All(b []byte) Span {
	return Span{0, len(b)}
}

// Len returns the number of bytes in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) check(b []byte) error {
	if s.Start < 0 || s.Start > s.End || s.End > len(b) {
		return fmt.Errorf("%w: [%d:%d] of %d bytes", ErrOutOfRange, s.Start, s.End, len(b))
	}
	return nil
}

// Port is a bit-banged SPI bus. It implements spi.PortCloser and spi.Pins.
//
// The mutex serializes whole chip select windows, so several Conn sharing a
// Port can be used from different goroutines.
type Port struct {
	clk  gpio.PinOut
	mosi gpio.PinOut
	miso gpio.PinIn

	// delay holds a clock level. Replaced in tests.
	delay func(time.Duration)

	mu      sync.Mutex
	cfg     Config
	maxFreq physic.Frequency
	closed  bool
}

// New returns a Port using the given pins, configured with DefaultConfig.
//
// CLK is driven to its idle level, MOSI low, and MISO is set as an input with
// the pull-up enabled so an absent device reads as 0xFF.
func New(clk, mosi gpio.PinOut, miso gpio.PinIn) (*Port, error) {
	if clk == nil || mosi == nil || miso == nil {
		return nil, errors.New("bitbang: CLK, MOSI and MISO pins are required")
	}
	p := &Port{clk: clk, mosi: mosi, miso: miso, cfg: DefaultConfig, delay: time.Sleep}
	if err := miso.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("bitbang: MISO %s: %w", miso, err)
	}
	if err := mosi.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("bitbang: MOSI %s: %w", mosi, err)
	}
	if err := clk.Out(p.cfg.idle()); err != nil {
		return nil, fmt.Errorf("bitbang: CLK %s: %w", clk, err)
	}
	return p, nil
}

func (p *Port) String() string {
	return fmt.Sprintf("bitbang(CLK=%s, MOSI=%s, MISO=%s)", p.clk, p.mosi, p.miso)
}

// Configure sets the link parameters used by the Port's own transfers
// (Write, ReadInto, WriteReadInto and Tx). A Conn applies its own parameters
// at the start of each transaction.
func (p *Port) Configure(f physic.Frequency, mode spi.Mode, bits int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.configure(Config{Freq: f, Mode: mode, Bits: bits})
}

// configure must be called with p.mu held.
func (p *Port) configure(c Config) error {
	if err := c.validate(); err != nil {
		return err
	}
	if err := p.clk.Out(c.idle()); err != nil {
		return fmt.Errorf("bitbang: CLK %s: %w", p.clk, err)
	}
	p.cfg = c
	return nil
}

// Config returns the current link parameters. Freq is capped by LimitSpeed.
func (p *Port) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.cfg
	if p.maxFreq != 0 && c.Freq > p.maxFreq {
		c.Freq = p.maxFreq
	}
	return c
}

// Frequency returns the clock rate produced by the fixed per-bit delays,
// independent of the requested frequency.
func (p *Port) Frequency() physic.Frequency {
	return physic.Frequency(time.Second/(sclkIdleTime+sclkActiveTime)) * physic.Hertz
}

// LimitSpeed implements spi.PortCloser.
//
// The requested frequency is advisory on this bus, so the limit is only
// recorded and reflected by Config.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("bitbang: invalid speed limit %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxFreq = f
	return nil
}

// Connect implements spi.Port.
//
// The returned Conn has no chip select line. Use Device to attach a device
// with its own chip select pin.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	c, err := p.Device(gpio.INVALID, f, mode|spi.NoCS, bits)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Device attaches a device selected by cs, active low. cs is deasserted
// before returning.
func (p *Port) Device(cs gpio.PinOut, f physic.Frequency, mode spi.Mode, bits int) (*Conn, error) {
	c := &Conn{port: p, cs: cs, cfg: Config{Freq: f, Mode: mode, Bits: bits}}
	if err := c.cfg.validate(); err != nil {
		return nil, err
	}
	if c.cfg.Mode&spi.NoCS != 0 {
		return c, nil
	}
	if cs == nil || cs == gpio.INVALID {
		return nil, errors.New("bitbang: chip select pin is required without spi.NoCS")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("bitbang: CS %s: %w", cs, err)
	}
	return c, nil
}

// Close implements spi.PortCloser. CLK is left at its idle level.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.clk.Out(p.cfg.idle())
}

// WriteReadInto clocks out w[ws.Start:ws.End] while clocking in
// r[rs.Start:rs.End]. Both spans must have the same length. Empty spans are
// a no-op.
func (p *Port) WriteReadInto(w []byte, ws Span, r []byte, rs Span) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.transfer(w, ws, r, rs)
}

// Write clocks out b[s.Start:s.End] and discards the bytes read back.
func (p *Port) Write(b []byte, s Span) error {
	if err := s.check(b); err != nil {
		return err
	}
	discard := make([]byte, s.Len())
	return p.WriteReadInto(b, s, discard, All(discard))
}

// ReadInto fills b[s.Start:s.End] while clocking out fill for every byte.
func (p *Port) ReadInto(b []byte, s Span, fill byte) error {
	if err := s.check(b); err != nil {
		return err
	}
	src := make([]byte, s.Len())
	for i := range src {
		src[i] = fill
	}
	return p.WriteReadInto(src, All(src), b, s)
}

// Tx clocks out w while clocking in r, without any chip select.
//
// Either buffer may be empty: an empty r discards the bytes read, an empty w
// sends zeros. Otherwise both must have the same length.
func (p *Port) Tx(w, r []byte) error {
	switch {
	case len(r) == 0:
		return p.Write(w, All(w))
	case len(w) == 0:
		return p.ReadInto(r, All(r), 0)
	default:
		return p.WriteReadInto(w, All(w), r, All(r))
	}
}

// transfer must be called with p.mu held.
func (p *Port) transfer(w []byte, ws Span, r []byte, rs Span) error {
	if err := ws.check(w); err != nil {
		return err
	}
	if err := rs.check(r); err != nil {
		return err
	}
	if ws.Len() != rs.Len() {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, ws.Len(), rs.Len())
	}
	for i := range ws.Len() {
		b, err := p.transferByte(w[ws.Start+i])
		if err != nil {
			return err
		}
		r[rs.Start+i] = b
	}
	return nil
}

// transferByte clocks one byte out on MOSI and in on MISO, most significant
// bit first. CLK starts and ends at its idle level.
//
// With CPHA=0, MOSI is set up while the clock idles and MISO is sampled on
// the leading edge. With CPHA=1, MOSI changes on the leading edge and MISO is
// sampled on the trailing edge.
//
// It must be called with p.mu held.
func (p *Port) transferByte(out byte) (byte, error) {
	idle := p.cfg.idle()
	var in byte
	for bit := byte(0x80); bit != 0; bit >>= 1 {
		l := gpio.Level(out&bit != 0)
		if p.cfg.sampleOnTrailing() {
			if err := p.clk.Out(!idle); err != nil {
				return in, fmt.Errorf("bitbang: CLK %s: %w", p.clk, err)
			}
			if err := p.mosi.Out(l); err != nil {
				return in, fmt.Errorf("bitbang: MOSI %s: %w", p.mosi, err)
			}
			p.delay(sclkActiveTime)
			if err := p.clk.Out(idle); err != nil {
				return in, fmt.Errorf("bitbang: CLK %s: %w", p.clk, err)
			}
			if p.miso.Read() {
				in |= bit
			}
			p.delay(sclkIdleTime)
			continue
		}
		if err := p.mosi.Out(l); err != nil {
			return in, fmt.Errorf("bitbang: MOSI %s: %w", p.mosi, err)
		}
		p.delay(sclkIdleTime)
		if err := p.clk.Out(!idle); err != nil {
			return in, fmt.Errorf("bitbang: CLK %s: %w", p.clk, err)
		}
		if p.miso.Read() {
			in |= bit
		}
		p.delay(sclkActiveTime)
		if err := p.clk.Out(idle); err != nil {
			return in, fmt.Errorf("bitbang: CLK %s: %w", p.clk, err)
		}
	}
	return in, nil
}

// CLK implements spi.Pins.
func (p *Port) CLK() gpio.PinOut {
	return p.clk
}

// MOSI implements spi.Pins.
func (p *Port) MOSI() gpio.PinOut {
	return p.mosi
}

// MISO implements spi.Pins.
func (p *Port) MISO() gpio.PinIn {
	return p.miso
}

// CS implements spi.Pins. The Port itself has no chip select.
func (p *Port) CS() gpio.PinOut {
	return gpio.INVALID
}

var _ spi.PortCloser = &Port{}
var _ spi.Pins = &Port{}
