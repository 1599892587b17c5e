// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bme280 controls a Bosch BME280 temperature, pressure and humidity
// sensor over SPI.
//
// The bus is expected to be a 4-wire SPI in mode 0 or 3. bitbang.Port
// provides one on plain GPIO pins when no SPI controller is available.
//
// Raw readings are compensated with the factory calibration using the
// datasheet's integer formulas, so results are bit exact with Bosch's
// reference driver. Temperature has a resolution of 0.01°C, pressure of
// 1/256 Pa and humidity of 1/1024 %RH.
//
// # Datasheet
//
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme280-ds002.pdf
//
// # Accuracy
//
//	Temperature: ±1°C between 0°C and 65°C
//	Pressure: ±1 hPa absolute, ±0.12 hPa relative
//	Humidity: ±3 %RH between 20 and 80 %RH
package bme280
