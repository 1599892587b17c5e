// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import "math"

// StandardSeaLevel is the ISA sea level pressure in hPa.
const StandardSeaLevel = 1013.25

// Altitude returns the altitude in metres at pressure hPa, given the sea
// level pressure seaLevel in hPa.
//
// This is the international barometric formula, accurate to a few metres in
// the lower troposphere. seaLevel must be positive.
func Altitude(hPa, seaLevel float64) float64 {
	return 44330 * (1 - math.Pow(hPa/seaLevel, 0.1903))
}

// SeaLevelForAltitude returns the sea level pressure in hPa given the
// pressure hPa measured at altitude metres. It is the inverse of Altitude.
func SeaLevelForAltitude(altitude, hPa float64) float64 {
	return hPa / math.Pow(1-altitude/44330, 5.255)
}
