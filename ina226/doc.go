// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ina226 controls a Texas Instruments INA226 current, voltage and
// power monitor over I²C.
//
// The Engine converts raw registers to volts, amps and watts. It keeps the
// calibration last written to the device apart from a newly computed one, so
// readings are always decoded with the calibration active when they were
// taken. Dev drives a device through an Engine.
//
// The fixed shunt 10A and 1A units are the general device with the
// INA226_10A or INA226_1A options.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/ina226.pdf
package ina226
