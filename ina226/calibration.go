// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"fmt"
	"math"

	"github.com/GermanBionicSystems/meter/common"
)

const (
	// calibrationScale is the fixed internal scaling term of the CAL formula.
	calibrationScale = 0.00512
	// currentSpan is the number of counts of the signed current register.
	currentSpan = 32768.0
	// powerLSBRatio is the fixed ratio between the power and current LSBs.
	powerLSBRatio = 25
	// maxCalibration is the largest value of the 15 bit CAL field.
	maxCalibration = 0x7fff

	shuntVoltageLSB = 2.5e-6
	busVoltageLSB   = 1.25e-3
)

// Calibration is the result of sizing the current and power registers for a
// shunt resistor and an expected maximum current.
type Calibration struct {
	// ShuntResistance in ohms.
	ShuntResistance float64
	// MaxCurrent is the largest expected current in amps.
	MaxCurrent float64
	// CurrentLSB is the current represented by one count of the current
	// register, in amps.
	CurrentLSB float64
	// PowerLSB is the power represented by one count of the power register,
	// in watts.
	PowerLSB float64
	// Register is the calibration register value.
	Register uint16
}

// NewCalibration derives the calibration for a shunt and maximum expected
// current. It returns an error wrapping common.ErrInvalidArgument if either
// value isn't a positive finite number, or if the combination can't be
// represented in the calibration register.
func NewCalibration(shuntOhms, maxAmps float64) (Calibration, error) {
	if !positive(maxAmps) {
		return Calibration{}, fmt.Errorf("max current %gA: %w", maxAmps, common.ErrInvalidArgument)
	}
	return newCalibration(shuntOhms, maxAmps/currentSpan)
}

// NewCalibrationLSB derives the calibration from an explicitly chosen current
// LSB, typically a round number slightly above maxAmps/32768.
func NewCalibrationLSB(shuntOhms, currentLSB float64) (Calibration, error) {
	if !positive(currentLSB) {
		return Calibration{}, fmt.Errorf("current LSB %gA: %w", currentLSB, common.ErrInvalidArgument)
	}
	return newCalibration(shuntOhms, currentLSB)
}

func newCalibration(shuntOhms, currentLSB float64) (Calibration, error) {
	if !positive(shuntOhms) {
		return Calibration{}, fmt.Errorf("shunt resistance %gΩ: %w", shuntOhms, common.ErrInvalidArgument)
	}
	cal := math.Trunc(calibrationScale / (currentLSB * shuntOhms))
	if cal < 1 || cal > maxCalibration || math.IsNaN(cal) {
		return Calibration{}, fmt.Errorf("calibration %g for %gΩ and %gA/LSB out of range: %w", cal, shuntOhms, currentLSB, common.ErrInvalidArgument)
	}
	return Calibration{
		ShuntResistance: shuntOhms,
		MaxCurrent:      currentLSB * currentSpan,
		CurrentLSB:      currentLSB,
		PowerLSB:        powerLSBRatio * currentLSB,
		Register:        uint16(cal),
	}, nil
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

func (c Calibration) String() string {
	return fmt.Sprintf("{Shunt: %gΩ, MaxCurrent: %gA, CurrentLSB: %gA, PowerLSB: %gW, CAL: %d}",
		c.ShuntResistance, c.MaxCurrent, c.CurrentLSB, c.PowerLSB, c.Register)
}
