// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bbspi is a container for a software SPI bus and the drivers using
// it.
//
// bitbang drives SPI over three or four GPIO pins. regspi layers register
// access on any spi.Conn. bme280 reads the Bosch BME280 environmental sensor.
// rpiogpio exposes go-rpio pins as periph.io gpio.PinIO for hosts without
// periph.io drivers. cmd/bme280bb ties them together.
package bbspi
