// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package avmeter reads the isolated current (Ameter) and voltage (Vmeter)
// meter units. Each unit is an ADS1115 behind an isolation amplifier, with
// an EEPROM holding a factory calibration for every gain.
//
// Readings are the converter voltage divided by the front end scale, times
// the calibration factor of the active gain.
package avmeter
