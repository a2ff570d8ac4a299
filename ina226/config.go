// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/meter/common"
)

// Mode is the operating mode. Triggered (single) modes perform one
// conversion and then power down; continuous modes run until changed.
type Mode uint8

const (
	PowerDown          Mode = 0
	ShuntVoltageSingle Mode = 1
	BusVoltageSingle   Mode = 2
	ShuntAndBusSingle  Mode = 3
	// 4 is a second power-down encoding.
	ShuntVoltage Mode = 5
	BusVoltage   Mode = 6
	ShuntAndBus  Mode = 7
)

func (m Mode) valid() bool {
	return m <= ShuntAndBus && m != 4
}

// Single returns true for the triggered modes.
func (m Mode) Single() bool {
	return m >= ShuntVoltageSingle && m <= ShuntAndBusSingle
}

// Continuous returns true for the free running modes.
func (m Mode) Continuous() bool {
	return m >= ShuntVoltage && m <= ShuntAndBus
}

// Channels returns the registers that hold results in this mode. Current is
// derived from the shunt voltage, and power from current and bus voltage.
func (m Mode) Channels() Channel {
	if !m.valid() {
		return 0
	}
	var c Channel
	if m&1 != 0 {
		c |= ChannelShunt | ChannelCurrent
	}
	if m&2 != 0 {
		c |= ChannelBus
	}
	if c&ChannelShunt != 0 && c&ChannelBus != 0 {
		c |= ChannelPower
	}
	return c
}

func (m Mode) String() string {
	switch m {
	case PowerDown:
		return "PowerDown"
	case ShuntVoltageSingle:
		return "ShuntVoltageSingle"
	case BusVoltageSingle:
		return "BusVoltageSingle"
	case ShuntAndBusSingle:
		return "ShuntAndBusSingle"
	case ShuntVoltage:
		return "ShuntVoltage"
	case BusVoltage:
		return "BusVoltage"
	case ShuntAndBus:
		return "ShuntAndBus"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Channel is a set of result registers.
type Channel uint8

const (
	ChannelShunt Channel = 1 << iota
	ChannelBus
	ChannelPower
	ChannelCurrent
)

// ConversionTime is the ADC conversion time of one channel.
type ConversionTime uint8

const (
	CT140us  ConversionTime = iota // 140µs
	CT204us                        // 204µs
	CT332us                        // 332µs
	CT588us                        // 588µs
	CT1100us                       // 1.1ms, the power-on default
	CT2116us                       // 2.116ms
	CT4156us                       // 4.156ms
	CT8244us                       // 8.244ms
)

var conversionMicroseconds = [...]time.Duration{140, 204, 332, 588, 1100, 2116, 4156, 8244}

func (ct ConversionTime) valid() bool {
	return int(ct) < len(conversionMicroseconds)
}

// Duration returns the conversion time.
func (ct ConversionTime) Duration() time.Duration {
	if !ct.valid() {
		return 0
	}
	return conversionMicroseconds[ct] * time.Microsecond
}

func (ct ConversionTime) String() string {
	if !ct.valid() {
		return fmt.Sprintf("ConversionTime(%d)", uint8(ct))
	}
	return ct.Duration().String()
}

// Averaging is the number of conversions averaged into each result.
type Averaging uint8

const (
	Avg1    Averaging = iota // Power-on default
	Avg4
	Avg16
	Avg64
	Avg128
	Avg256
	Avg512
	Avg1024
)

var averagingCounts = [...]int{1, 4, 16, 64, 128, 256, 512, 1024}

func (a Averaging) valid() bool {
	return int(a) < len(averagingCounts)
}

// Count returns the number of samples averaged.
func (a Averaging) Count() int {
	if !a.valid() {
		return 0
	}
	return averagingCounts[a]
}

func (a Averaging) String() string {
	if !a.valid() {
		return fmt.Sprintf("Averaging(%d)", uint8(a))
	}
	return fmt.Sprintf("%dx", averagingCounts[a])
}

// Configuration register layout. Bit 14 always reads back as 1.
var (
	fieldReset     = common.Flag(15)
	fieldFixed     = common.Flag(14)
	fieldAveraging = common.Field{Offset: 9, Width: 3}
	fieldBusCT     = common.Field{Offset: 6, Width: 3}
	fieldShuntCT   = common.Field{Offset: 3, Width: 3}
	fieldMode      = common.Field{Offset: 0, Width: 3}
)

// Config holds the conversion settings of an INA226.
type Config struct {
	mode      Mode
	shuntCT   ConversionTime
	busCT     ConversionTime
	averaging Averaging
}

// DefaultConfig returns the power-on configuration, register value 0x4127.
func DefaultConfig() Config {
	return Config{mode: ShuntAndBus, shuntCT: CT1100us, busCT: CT1100us, averaging: Avg1}
}

// Mode returns the operating mode.
func (c Config) Mode() Mode { return c.mode }

// ShuntConversionTime returns the shunt voltage conversion time.
func (c Config) ShuntConversionTime() ConversionTime { return c.shuntCT }

// BusConversionTime returns the bus voltage conversion time.
func (c Config) BusConversionTime() ConversionTime { return c.busCT }

// Averaging returns the averaging count.
func (c Config) Averaging() Averaging { return c.averaging }

// SetMode sets the operating mode.
func (c *Config) SetMode(m Mode) error {
	if !m.valid() {
		return fmt.Errorf("mode %d: %w", uint8(m), common.ErrInvalidArgument)
	}
	c.mode = m
	return nil
}

// SetConversionTime sets the shunt and bus conversion times.
func (c *Config) SetConversionTime(shunt, bus ConversionTime) error {
	if !shunt.valid() {
		return fmt.Errorf("shunt conversion time %d: %w", uint8(shunt), common.ErrInvalidArgument)
	}
	if !bus.valid() {
		return fmt.Errorf("bus conversion time %d: %w", uint8(bus), common.ErrInvalidArgument)
	}
	c.shuntCT = shunt
	c.busCT = bus
	return nil
}

// SetAveraging sets the averaging count.
func (c *Config) SetAveraging(a Averaging) error {
	if !a.valid() {
		return fmt.Errorf("averaging %d: %w", uint8(a), common.ErrInvalidArgument)
	}
	c.averaging = a
	return nil
}

// Register returns the configuration register value.
func (c Config) Register() uint16 {
	reg, _ := common.Pack(
		common.FieldValue{Field: fieldFixed, Value: 1},
		common.FieldValue{Field: fieldAveraging, Value: uint16(c.averaging)},
		common.FieldValue{Field: fieldBusCT, Value: uint16(c.busCT)},
		common.FieldValue{Field: fieldShuntCT, Value: uint16(c.shuntCT)},
		common.FieldValue{Field: fieldMode, Value: uint16(c.mode)},
	)
	return reg
}

// DecodeConfig returns the settings held in a configuration register value.
// Mode 4 reads as PowerDown.
func DecodeConfig(reg uint16) Config {
	m := Mode(fieldMode.Get(reg))
	if !m.valid() {
		m = PowerDown
	}
	return Config{
		mode:      m,
		shuntCT:   ConversionTime(fieldShuntCT.Get(reg)),
		busCT:     ConversionTime(fieldBusCT.Get(reg)),
		averaging: Averaging(fieldAveraging.Get(reg)),
	}
}

// ConversionDuration returns the time taken to produce one result: the
// conversion time of every enabled channel, times the averaging count.
func (c Config) ConversionDuration() time.Duration {
	var per time.Duration
	ch := c.mode.Channels()
	if ch&ChannelShunt != 0 {
		per += c.shuntCT.Duration()
	}
	if ch&ChannelBus != 0 {
		per += c.busCT.Duration()
	}
	return per * time.Duration(c.averaging.Count())
}

func (c Config) String() string {
	return fmt.Sprintf("{Mode: %s, Shunt: %s, Bus: %s, Averaging: %s}", c.mode, c.shuntCT, c.busCT, c.averaging)
}
