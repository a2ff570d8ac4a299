// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package avmeter

import (
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/meter/ads111x"
	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3"
)

const (
	// calibrationBase is the EEPROM address of the block for PGA6144. Each
	// gain has an 8 byte block.
	calibrationBase byte = 0xd0
	calibrationSize      = 8

	numGains = int(ads111x.PGA256) + 1
)

var errChecksum = errors.New("avmeter: calibration checksum mismatch")

// Calibration is the factory calibration of one gain: the code the ADC should
// have returned for a reference input, and the code it actually returned.
type Calibration struct {
	Hope   int16
	Actual int16
}

// Factor returns the correction applied to readings, 1 when the block holds
// no calibration.
func (c Calibration) Factor() float64 {
	if c.Actual == 0 {
		return 1
	}
	return float64(c.Hope) / float64(c.Actual)
}

// DecodeCalibration decodes an EEPROM calibration block. Bytes 1-2 hold the
// expected code and bytes 3-4 the measured one, both big-endian. Byte 5 is
// the XOR of bytes 0-4.
func DecodeCalibration(b []byte) (Calibration, error) {
	if len(b) < 6 {
		return Calibration{}, fmt.Errorf("avmeter: calibration block of %d bytes: %w", len(b), common.ErrInvalidArgument)
	}
	if sum := common.XOR8(b[:5]); sum != b[5] {
		return Calibration{}, fmt.Errorf("%w: 0x%02x != 0x%02x", errChecksum, sum, b[5])
	}
	return Calibration{
		Hope:   int16(uint16(b[1])<<8 | uint16(b[2])),
		Actual: int16(uint16(b[3])<<8 | uint16(b[4])),
	}, nil
}

// readCalibrations reads the block of every gain.
func readCalibrations(c conn.Conn) ([numGains]Calibration, error) {
	var cals [numGains]Calibration
	buf := make([]byte, calibrationSize)
	for g := range cals {
		addr := calibrationBase + byte(g)*calibrationSize
		if err := c.Tx([]byte{addr}, buf); err != nil {
			return cals, fmt.Errorf("avmeter: read calibration %s: %w", ads111x.Gain(g), err)
		}
		cal, err := DecodeCalibration(buf)
		if err != nil {
			return cals, fmt.Errorf("%w for %s", err, ads111x.Gain(g))
		}
		cals[g] = cal
	}
	return cals, nil
}
