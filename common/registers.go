// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/mmr"
)

// Registers provides big-endian access to the 16 bit registers of a device
// that uses a register pointer byte, like the TI ADS111x and INA2xx parts.
type Registers struct {
	Conn conn.Conn
}

func (r *Registers) dev() *mmr.Dev8 {
	return &mmr.Dev8{Conn: r.Conn, Order: binary.BigEndian}
}

// Read16 reads the 16 bit register reg.
func (r *Registers) Read16(reg byte) (uint16, error) {
	v, err := r.dev().ReadUint16(reg)
	if err != nil {
		return 0, fmt.Errorf("read register 0x%02x: %w", reg, err)
	}
	return v, nil
}

// ReadInt16 reads the 16 bit register reg as a two's complement value.
func (r *Registers) ReadInt16(reg byte) (int16, error) {
	v, err := r.Read16(reg)
	return int16(SignExtend(uint32(v), 16)), err
}

// Write16 writes value to the 16 bit register reg.
func (r *Registers) Write16(reg byte, value uint16) error {
	if err := r.dev().WriteUint16(reg, value); err != nil {
		return fmt.Errorf("write register 0x%02x: %w", reg, err)
	}
	return nil
}

func (r *Registers) String() string {
	return r.Conn.String()
}
