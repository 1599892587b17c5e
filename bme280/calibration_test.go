// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import "testing"

// datasheetCalibration is the example calibration from the BME280 datasheet
// and Bosch's reference driver, with typical humidity parameters.
var datasheetCalibration = calibration280{
	t1: 27504, t2: 26435, t3: -1000,
	p1: 36477, p2: -10685, p3: 3024, p4: 2855, p5: 140, p6: -7, p7: 15500, p8: -14600, p9: 6000,
	h1: 75, h2: 359, h3: 0, h4: 340, h5: 0, h6: 30,
}

func TestCompensateTempInt(t *testing.T) {
	data := []struct {
		raw   int32
		t     int32
		tFine int32
	}{
		{519888, 2508, 128422},
		{400000, -1264, -64736},
		{600000, 5011, 256562},
	}
	c := datasheetCalibration
	for _, line := range data {
		temp, tFine := c.compensateTempInt(line.raw)
		if temp != line.t || tFine != line.tFine {
			t.Errorf("compensateTempInt(%d) = %d, %d; expected %d, %d", line.raw, temp, tFine, line.t, line.tFine)
		}
	}
}

func TestCompensatePressureInt64(t *testing.T) {
	c := datasheetCalibration
	if p := c.compensatePressureInt64(415148, 128422); p != 25767233 {
		t.Errorf("pressure = %d, expected 25767233", p)
	}
	if p := c.compensatePressureInt64(415148, -64736); p != 24298573 {
		t.Errorf("pressure = %d, expected 24298573", p)
	}
	// A zero p1 would divide by zero.
	c.p1 = 0
	if p := c.compensatePressureInt64(415148, 128422); p != 0 {
		t.Errorf("pressure = %d, expected 0", p)
	}
}

func TestCompensateHumidityInt(t *testing.T) {
	data := []struct {
		raw   int32
		tFine int32
		h     uint32
	}{
		{30422, 128422, 49364},
		{30422, 256562, 52107},
		{32767, 128422, 62614},
		// Clamped to 0 and 100%.
		{0, 128422, 0},
		{65535, 128422, 102400},
	}
	c := datasheetCalibration
	for _, line := range data {
		if h := c.compensateHumidityInt(line.raw, line.tFine); h != line.h {
			t.Errorf("compensateHumidityInt(%d, %d) = %d, expected %d", line.raw, line.tFine, h, line.h)
		}
	}
}

func TestCompensateOtherCalibration(t *testing.T) {
	c := datasheetCalibration
	c.t1, c.t2, c.t3 = 28176, 26220, 350
	c.p1, c.p2, c.p3, c.p4, c.p5, c.p6, c.p7, c.p8, c.p9 = 38237, -10824, 3024, 7799, -99, -7, 9900, -10230, 4285
	temp, tFine := c.compensateTempInt(519888)
	if temp != 2161 || tFine != 110635 {
		t.Errorf("temperature = %d, %d", temp, tFine)
	}
	if p := c.compensatePressureInt64(415148, tFine); p != 21126834 {
		t.Errorf("pressure = %d, expected 21126834", p)
	}
	if h := c.compensateHumidityInt(30422, tFine); h != 48983 {
		t.Errorf("humidity = %d, expected 48983", h)
	}
}

func TestDecodeH45(t *testing.T) {
	data := []struct {
		e4, e5, e6 byte
		h4, h5     int16
	}{
		{0x15, 0x04, 0x00, 340, 0},
		{0x14, 0xA3, 0x03, 0x143, 0x3A},
		// 0xE4 and 0xE6 carry the sign.
		{0xFF, 0x0F, 0x00, -1, 0},
		{0x00, 0xF0, 0xFF, 0, -1},
		{0x80, 0x00, 0x80, -2048, -2048},
	}
	for _, line := range data {
		h4, h5 := decodeH45(line.e4, line.e5, line.e6)
		if h4 != line.h4 || h5 != line.h5 {
			t.Errorf("decodeH45(%#x, %#x, %#x) = %d, %d; expected %d, %d", line.e4, line.e5, line.e6, h4, h5, line.h4, line.h5)
		}
	}
}
