// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ads111x controls the Texas Instruments ADS1113, ADS1114 and
// ADS1115 16 bit delta-sigma analog to digital converters over an I²C bus.
//
// The measurement settings live in a Config value. Config encodes the
// settings into the config register and converts conversion register codes
// into volts using the full scale range of the selected gain. It performs no
// I/O, so it can be used on its own with any transport. Dev wraps a Config
// and a periph.io I²C connection.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/ads1115.pdf
package ads111x
