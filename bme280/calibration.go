// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import "github.com/GermanBionicSystems/bbspi/regspi"

// Calibration register addresses.
const (
	regDigT1 = 0x88
	regDigT2 = 0x8A
	regDigT3 = 0x8C
	regDigP1 = 0x8E
	regDigP2 = 0x90
	regDigP3 = 0x92
	regDigP4 = 0x94
	regDigP5 = 0x96
	regDigP6 = 0x98
	regDigP7 = 0x9A
	regDigP8 = 0x9C
	regDigP9 = 0x9E
	regDigH1 = 0xA1
	regDigH2 = 0xE1
	regDigH3 = 0xE3
	regDigH4 = 0xE4
	regDigH5 = 0xE5
	regDigH6 = 0xE7
)

// calibration280 holds the factory trimming parameters.
type calibration280 struct {
	t1     uint16
	t2, t3 int16
	p1     uint16
	p2, p3 int16
	p4, p5 int16
	p6, p7 int16
	p8, p9 int16
	h1     uint8
	h2     int16
	h3     uint8
	h4, h5 int16
	h6     int8
}

// regReader reads registers one at a time and keeps the first error.
type regReader struct {
	regs *regspi.Dev
	err  error
}

func (r *regReader) u8(addr byte) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.regs.ReadU8(addr)
	r.err = err
	return v
}

func (r *regReader) u16(addr byte) uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.regs.ReadU16LE(addr)
	r.err = err
	return v
}

func (r *regReader) s16(addr byte) int16 {
	if r.err != nil {
		return 0
	}
	v, err := r.regs.ReadS16LE(addr)
	r.err = err
	return v
}

// readCalibration reads every trimming parameter with its own register read.
func readCalibration(regs *regspi.Dev) (calibration280, error) {
	r := regReader{regs: regs}
	var c calibration280
	c.t1 = r.u16(regDigT1)
	c.t2 = r.s16(regDigT2)
	c.t3 = r.s16(regDigT3)
	c.p1 = r.u16(regDigP1)
	c.p2 = r.s16(regDigP2)
	c.p3 = r.s16(regDigP3)
	c.p4 = r.s16(regDigP4)
	c.p5 = r.s16(regDigP5)
	c.p6 = r.s16(regDigP6)
	c.p7 = r.s16(regDigP7)
	c.p8 = r.s16(regDigP8)
	c.p9 = r.s16(regDigP9)
	c.h1 = r.u8(regDigH1)
	c.h2 = r.s16(regDigH2)
	c.h3 = r.u8(regDigH3)
	e4 := r.u8(regDigH4)
	e5 := r.u8(regDigH5)
	e6 := r.u8(regDigH5 + 1)
	c.h6 = int8(r.u8(regDigH6))
	c.h4, c.h5 = decodeH45(e4, e5, e6)
	return c, r.err
}

// decodeH45 unpacks the two signed 12 bit parameters sharing register 0xE5.
// The upper bits come from the signed 0xE4 and 0xE6.
func decodeH45(e4, e5, e6 byte) (int16, int16) {
	h4 := int16(int8(e4))<<4 | int16(e5&0x0F)
	h5 := int16(int8(e6))<<4 | int16(e5>>4)
	return h4, h5
}

// compensateTempInt returns temperature in °C with a resolution of 0.01°C,
// so 5123 is 51.23°C, and the fine temperature the pressure and humidity
// compensation depend on.
//
// raw has 20 bits of resolution.
func (c *calibration280) compensateTempInt(raw int32) (int32, int32) {
	x := int64(raw)
	t1 := int64(c.t1)
	var1 := (((x >> 3) - (t1 << 1)) * int64(c.t2)) >> 11
	d := (x >> 4) - t1
	var2 := (((d * d) >> 12) * int64(c.t3)) >> 14
	tFine := var1 + var2
	return int32((tFine*5 + 128) >> 8), int32(tFine)
}

// compensatePressureInt64 returns pressure in Pa in Q24.8 format, so 24674867
// is 24674867/256 = 96386.2 Pa. It returns 0 when the calibration would cause
// a division by zero.
//
// raw has 20 bits of resolution.
func (c *calibration280) compensatePressureInt64(raw, tFine int32) uint32 {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.p6)
	var2 += (var1 * int64(c.p5)) << 17
	var2 += int64(c.p4) << 35
	var1 = ((var1 * var1 * int64(c.p3)) >> 8) + ((var1 * int64(c.p2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(c.p1)) >> 33
	if var1 == 0 {
		return 0
	}
	p := 1048576 - int64(raw)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(c.p9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.p8) * p) >> 19
	return uint32(((p + var1 + var2) >> 8) + (int64(c.p7) << 4))
}

// compensateHumidityInt returns humidity in %RH in Q22.10 format, so 47445 is
// 47445/1024 = 46.333%. The result is clamped to [0, 100] %RH.
//
// raw has 16 bits of resolution.
func (c *calibration280) compensateHumidityInt(raw, tFine int32) uint32 {
	x := int64(tFine) - 76800
	x1 := (((int64(raw) << 14) - (int64(c.h4) << 20) - (int64(c.h5) * x)) + 16384) >> 15
	x2 := (((x * int64(c.h6)) >> 10) * (((x * int64(c.h3)) >> 11) + 32768)) >> 10
	x = x1 * (((x2+2097152)*int64(c.h2) + 8192) >> 14)
	x -= ((((x >> 15) * (x >> 15)) >> 7) * int64(c.h1)) >> 4
	if x < 0 {
		x = 0
	}
	if x > 419430400 {
		x = 419430400
	}
	return uint32(x >> 12)
}
