// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/bbspi/regspi"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Control and data register addresses.
const (
	regChipID    = 0xD0
	regSoftReset = 0xE0
	regCtrlHum   = 0xF2
	regStatus    = 0xF3
	regCtrlMeas  = 0xF4
	regConfig    = 0xF5
	regPress     = 0xF7
	regTemp      = 0xFA
	regHum       = 0xFD
)

const (
	chipID       = 0x60
	softResetCmd = 0xB6

	// Status bit set while the calibration data is copied to the registers.
	statusImUpdate = 0x01

	// Values read from the data registers of a skipped measurement.
	skipped24 = 0x800000
	skipped16 = 0x8000

	modeMask = 0x03
)

const (
	resetDelay     = 300 * time.Millisecond
	pollInterval   = 100 * time.Millisecond
	configureDelay = 100 * time.Millisecond
)

var (
	// ErrIdentityMismatch is returned when the chip ID register does not
	// identify a BME280.
	ErrIdentityMismatch = errors.New("bme280: unexpected chip ID")
	// ErrCalibrationTimeout is returned when the calibration data copy did not
	// complete after a reset.
	ErrCalibrationTimeout = errors.New("bme280: timed out waiting for calibration data")
	// ErrNotCalibrated is returned by operations that need the calibration
	// before Begin completed.
	ErrNotCalibrated = errors.New("bme280: device not calibrated")
	// ErrInvalidSampling is returned for out of range Sampling values.
	ErrInvalidSampling = errors.New("bme280: invalid sampling")
)

// sleep waits between device operations. Replaced in tests.
var sleep = time.Sleep

// State is the initialization progress of a Dev.
type State int

// Possible states, in order.
const (
	Uninitialized State = iota
	Resetting
	WaitingForCalibration
	Calibrated
	Configured
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Resetting:
		return "Resetting"
	case WaitingForCalibration:
		return "WaitingForCalibration"
	case Calibrated:
		return "Calibrated"
	case Configured:
		return "Configured"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Opts holds the configuration applied by Begin.
type Opts struct {
	Sampling Sampling
	// CalibrationPolls is the number of status reads, 100ms apart, to wait
	// for the calibration data after reset.
	CalibrationPolls int
}

// DefaultOpts is DefaultSampling with a 2s calibration wait.
var DefaultOpts = Opts{
	Sampling:         DefaultSampling,
	CalibrationPolls: 20,
}

// Measurement is the result of one burst read of all data registers.
//
// A Has field is false when the matching measurement is skipped. Pressure and
// humidity need the temperature, so they are unavailable without it.
type Measurement struct {
	Temperature    physic.Temperature
	Pressure       physic.Pressure
	Humidity       physic.RelativeHumidity
	HasTemperature bool
	HasPressure    bool
	HasHumidity    bool
}

// Dev is a handle to an initialized BME280.
type Dev struct {
	regs *regspi.Dev
	opts Opts

	mu       sync.Mutex
	state    State
	cal      calibration280
	sampling Sampling
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewSPI returns an initialized BME280 on the SPI connection c.
//
// Use bitbang.Port.Device to get a Conn on GPIO pins.
func NewSPI(c spi.Conn, opts *Opts) (*Dev, error) {
	return New(regspi.New(c), opts)
}

// New returns an initialized BME280 using regs for register access.
//
// Initialization resets the device, so any previous configuration is lost.
// opts may be nil to use DefaultOpts.
func New(regs *regspi.Dev, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	dev := &Dev{regs: regs, opts: *opts}
	if dev.opts.CalibrationPolls <= 0 {
		dev.opts.CalibrationPolls = DefaultOpts.CalibrationPolls
	}
	if err := dev.opts.Sampling.validate(); err != nil {
		return nil, err
	}
	if err := dev.Begin(); err != nil {
		return nil, err
	}
	return dev, nil
}

func (dev *Dev) String() string {
	return fmt.Sprintf("BME280{%s}", dev.regs)
}

// Begin checks the chip ID, resets the device, waits for the calibration
// data, reads it and applies the configured Sampling.
//
// Nothing is written to the device when the chip ID does not match.
func (dev *Dev) Begin() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.state = Uninitialized
	id, err := dev.regs.ReadU8(regChipID)
	if err != nil {
		return fmt.Errorf("bme280: reading chip ID: %w", err)
	}
	if id != chipID {
		return fmt.Errorf("%w: got 0x%02x, expected 0x%02x", ErrIdentityMismatch, id, chipID)
	}

	dev.state = Resetting
	if err := dev.regs.WriteU8(regSoftReset, softResetCmd); err != nil {
		return fmt.Errorf("bme280: reset: %w", err)
	}
	sleep(resetDelay)

	dev.state = WaitingForCalibration
	if err := dev.waitCalibration(); err != nil {
		return err
	}
	cal, err := readCalibration(dev.regs)
	if err != nil {
		return fmt.Errorf("bme280: reading calibration: %w", err)
	}
	dev.cal = cal
	dev.state = Calibrated

	if err := dev.setSampling(dev.opts.Sampling); err != nil {
		return err
	}
	sleep(configureDelay)
	return nil
}

func (dev *Dev) waitCalibration() error {
	for range dev.opts.CalibrationPolls {
		status, err := dev.regs.ReadU8(regStatus)
		if err != nil {
			return fmt.Errorf("bme280: reading status: %w", err)
		}
		if status&statusImUpdate == 0 {
			return nil
		}
		sleep(pollInterval)
	}
	return fmt.Errorf("%w after %d polls", ErrCalibrationTimeout, dev.opts.CalibrationPolls)
}

// State returns the initialization progress.
func (dev *Dev) State() State {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.state
}

// Sampling returns the acquisition setup last written to the device.
func (dev *Dev) Sampling() Sampling {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.sampling
}

// SetSampling writes the acquisition setup. The humidity control register is
// written first, as it only takes effect on the following measurement
// control write.
func (dev *Dev) SetSampling(s Sampling) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.state < Calibrated {
		return ErrNotCalibrated
	}
	return dev.setSampling(s)
}

func (dev *Dev) setSampling(s Sampling) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := dev.regs.WriteU8(regCtrlHum, s.ctrlHum()); err != nil {
		return fmt.Errorf("bme280: %w", err)
	}
	if err := dev.regs.WriteU8(regConfig, s.config()); err != nil {
		return fmt.Errorf("bme280: %w", err)
	}
	if err := dev.regs.WriteU8(regCtrlMeas, s.ctrlMeas()); err != nil {
		return fmt.Errorf("bme280: %w", err)
	}
	dev.sampling = s
	dev.state = Configured
	return nil
}

// prepare checks the device can be read and, in Forced mode, runs one
// measurement.
func (dev *Dev) prepare() error {
	if dev.state < Calibrated {
		return ErrNotCalibrated
	}
	if dev.state == Configured && dev.sampling.Mode == Forced {
		if err := dev.regs.WriteU8(regCtrlMeas, dev.sampling.ctrlMeas()); err != nil {
			return fmt.Errorf("bme280: %w", err)
		}
		sleep(dev.sampling.measurementTime())
	}
	return nil
}

// readTemperature returns the compensated temperature in 0.01°C and the fine
// temperature. ok is false when the measurement is skipped.
func (dev *Dev) readTemperature() (centi, tFine int32, ok bool, err error) {
	raw, err := dev.regs.ReadU24(regTemp)
	if err != nil {
		return 0, 0, false, fmt.Errorf("bme280: temperature: %w", err)
	}
	if raw == skipped24 {
		return 0, 0, false, nil
	}
	centi, tFine = dev.cal.compensateTempInt(int32(raw >> 4))
	return centi, tFine, true, nil
}

// Temperature returns the temperature in °C. ok is false when the temperature
// measurement is skipped.
func (dev *Dev) Temperature() (float64, bool, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.prepare(); err != nil {
		return 0, false, err
	}
	t, _, ok, err := dev.readTemperature()
	if err != nil || !ok {
		return 0, false, err
	}
	return float64(t) / 100, true, nil
}

// Pressure returns the pressure in Pa. ok is false when the pressure or the
// temperature measurement is skipped.
//
// The temperature is read first, in its own transaction, as compensation
// depends on it.
func (dev *Dev) Pressure() (float64, bool, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.prepare(); err != nil {
		return 0, false, err
	}
	_, tFine, ok, err := dev.readTemperature()
	if err != nil || !ok {
		return 0, false, err
	}
	raw, err := dev.regs.ReadU24(regPress)
	if err != nil {
		return 0, false, fmt.Errorf("bme280: pressure: %w", err)
	}
	if raw == skipped24 {
		return 0, false, nil
	}
	p := dev.cal.compensatePressureInt64(int32(raw>>4), tFine)
	return float64(p) / 256, true, nil
}

// Humidity returns the relative humidity in %. ok is false when the humidity
// or the temperature measurement is skipped.
//
// The temperature is read first, in its own transaction, as compensation
// depends on it.
func (dev *Dev) Humidity() (float64, bool, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.prepare(); err != nil {
		return 0, false, err
	}
	_, tFine, ok, err := dev.readTemperature()
	if err != nil || !ok {
		return 0, false, err
	}
	raw, err := dev.regs.ReadU16(regHum)
	if err != nil {
		return 0, false, fmt.Errorf("bme280: humidity: %w", err)
	}
	if raw == skipped16 {
		return 0, false, nil
	}
	h := dev.cal.compensateHumidityInt(int32(raw), tFine)
	return float64(h) / 1024, true, nil
}

// Altitude returns the altitude in metres computed from the current pressure
// and the given sea level pressure in hPa. ok is false when the pressure is
// unavailable.
func (dev *Dev) Altitude(seaLevelHPa float64) (float64, bool, error) {
	p, ok, err := dev.Pressure()
	if err != nil || !ok {
		return 0, false, err
	}
	return Altitude(p/100, seaLevelHPa), true, nil
}

// ReadAll reads all data registers in one burst, so the three values come
// from the same measurement.
func (dev *Dev) ReadAll() (Measurement, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.prepare(); err != nil {
		return Measurement{}, err
	}
	return dev.readAll()
}

func (dev *Dev) readAll() (Measurement, error) {
	var m Measurement
	var b [8]byte
	if err := dev.regs.Read(regPress, b[:]); err != nil {
		return m, fmt.Errorf("bme280: %w", err)
	}
	pRaw := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	tRaw := uint32(b[3])<<16 | uint32(b[4])<<8 | uint32(b[5])
	hRaw := uint16(b[6])<<8 | uint16(b[7])
	if tRaw == skipped24 {
		return m, nil
	}
	t, tFine := dev.cal.compensateTempInt(int32(tRaw >> 4))
	m.Temperature = physic.Temperature(t)*10*physic.MilliCelsius + physic.ZeroCelsius
	m.HasTemperature = true
	if pRaw != skipped24 {
		p := dev.cal.compensatePressureInt64(int32(pRaw>>4), tFine)
		// Convert from Q24.8 Pa.
		m.Pressure = physic.Pressure(p) * 15625 * physic.MicroPascal / 4
		m.HasPressure = true
	}
	if hRaw != skipped16 {
		h := physic.RelativeHumidity(dev.cal.compensateHumidityInt(int32(hRaw), tFine))
		// Convert from Q22.10 %RH.
		m.Humidity = h * 10000 / 1024 * physic.MicroRH
		m.HasHumidity = true
	}
	return m, nil
}

// Sense implements physic.SenseEnv. Skipped measurements leave the matching
// field of e unchanged.
func (dev *Dev) Sense(e *physic.Env) error {
	m, err := dev.ReadAll()
	if err != nil {
		return err
	}
	if m.HasTemperature {
		e.Temperature = m.Temperature
	}
	if m.HasPressure {
		e.Pressure = m.Pressure
	}
	if m.HasHumidity {
		e.Humidity = m.Humidity
	}
	return nil
}

// SenseContinuous implements physic.SenseEnv. The interval must cover a
// whole measurement at the current oversampling. Call Halt to stop.
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.stop != nil {
		return nil, errors.New("bme280: SenseContinuous already running")
	}
	if mt := dev.sampling.measurementTime(); interval < mt {
		return nil, fmt.Errorf("bme280: interval %s is shorter than the measurement time %s", interval, mt)
	}
	stop := make(chan struct{})
	dev.stop = stop
	ch := make(chan physic.Env, 16)
	dev.wg.Add(1)
	go func() {
		defer dev.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var e physic.Env
				if err := dev.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				case <-stop:
					return
				}
			}
		}
	}()
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (dev *Dev) Precision(e *physic.Env) {
	e.Temperature = 10 * physic.MilliKelvin
	e.Pressure = 15625 * physic.MicroPascal / 4
	e.Humidity = 10000 * physic.MicroRH / 1024
}

// Halt stops SenseContinuous if running and puts the device in Sleep mode.
// Implements conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	if dev.stop != nil {
		close(dev.stop)
		dev.stop = nil
	}
	dev.mu.Unlock()
	dev.wg.Wait()

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.state != Configured || dev.sampling.Mode == Sleep {
		return nil
	}
	if err := dev.regs.UpdateU8(regCtrlMeas, modeMask, byte(Sleep)); err != nil {
		return fmt.Errorf("bme280: %w", err)
	}
	dev.sampling.Mode = Sleep
	return nil
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
