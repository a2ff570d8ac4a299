// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"fmt"
	"math"
	"time"

	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3/physic"
)

// Engine holds the configuration and calibration of one INA226 and converts
// its raw registers to physical units. It performs no I/O.
//
// Configure computes a pending calibration. Decoding current and power uses
// the applied calibration, which only changes when ApplyCalibration is called
// after the calibration register was written to the device. This keeps
// readings taken under the old calibration decodable with the old LSBs.
//
// Engine is not safe for concurrent use.
type Engine struct {
	cfg        Config
	pending    Calibration
	hasPending bool
	applied    Calibration
	calibrated bool
}

// NewEngine returns an uncalibrated engine in PowerDown mode.
func NewEngine() *Engine {
	e := &Engine{cfg: DefaultConfig()}
	e.cfg.mode = PowerDown
	return e
}

// Configure derives the pending calibration for a shunt resistance in ohms
// and a maximum expected current in amps. On error nothing changes.
func (e *Engine) Configure(shuntOhms, maxAmps float64) error {
	c, err := NewCalibration(shuntOhms, maxAmps)
	if err != nil {
		return err
	}
	e.pending, e.hasPending = c, true
	return nil
}

// ConfigureLSB is like Configure with an explicit current LSB in amps.
func (e *Engine) ConfigureLSB(shuntOhms, currentLSB float64) error {
	c, err := NewCalibrationLSB(shuntOhms, currentLSB)
	if err != nil {
		return err
	}
	e.pending, e.hasPending = c, true
	return nil
}

// CalibrationRegister returns the pending calibration register value.
func (e *Engine) CalibrationRegister() (uint16, error) {
	if !e.hasPending {
		return 0, fmt.Errorf("calibration: %w", common.ErrNotConfigured)
	}
	return e.pending.Register, nil
}

// ApplyCalibration marks the pending calibration as written to the device.
func (e *Engine) ApplyCalibration() error {
	if !e.hasPending {
		return fmt.Errorf("calibration: %w", common.ErrNotConfigured)
	}
	e.applied, e.calibrated = e.pending, true
	return nil
}

// Calibration returns the applied calibration.
func (e *Engine) Calibration() (Calibration, error) {
	if !e.calibrated {
		return Calibration{}, fmt.Errorf("calibration: %w", common.ErrNotConfigured)
	}
	return e.applied, nil
}

// Reset returns the engine to the state of a device that was just reset: the
// power-on configuration and a zero calibration register. A pending
// calibration is kept so it can be written again.
func (e *Engine) Reset() {
	e.cfg = DefaultConfig()
	e.applied, e.calibrated = Calibration{}, false
}

// Config returns the current configuration.
func (e *Engine) Config() Config { return e.cfg }

// SetConfig replaces the configuration, typically after it was written to the
// device.
func (e *Engine) SetConfig(c Config) { e.cfg = c }

// Mode returns the current operating mode.
func (e *Engine) Mode() Mode { return e.cfg.mode }

// SetMode sets the operating mode.
func (e *Engine) SetMode(m Mode) error { return e.cfg.SetMode(m) }

// SetConversionTime sets the shunt and bus conversion times.
func (e *Engine) SetConversionTime(shunt, bus ConversionTime) error {
	return e.cfg.SetConversionTime(shunt, bus)
}

// SetAveraging sets the averaging count.
func (e *Engine) SetAveraging(a Averaging) error { return e.cfg.SetAveraging(a) }

// ConversionComplete records the end of a conversion. The device powers
// itself down after a triggered conversion, continuous modes keep running.
func (e *Engine) ConversionComplete() {
	if e.cfg.mode.Single() {
		e.cfg.mode = PowerDown
	}
}

// DecodeShuntVoltage converts a shunt voltage register value to volts.
func DecodeShuntVoltage(raw int16) float64 {
	return float64(raw) * shuntVoltageLSB
}

// DecodeBusVoltage converts a bus voltage register value to volts.
func DecodeBusVoltage(raw uint16) float64 {
	return float64(raw) * busVoltageLSB
}

// DecodeShuntVoltage converts a shunt voltage register value to volts.
func (e *Engine) DecodeShuntVoltage(raw int16) float64 { return DecodeShuntVoltage(raw) }

// DecodeBusVoltage converts a bus voltage register value to volts.
func (e *Engine) DecodeBusVoltage(raw uint16) float64 { return DecodeBusVoltage(raw) }

// DecodeCurrent converts a current register value to amps using the applied
// calibration.
func (e *Engine) DecodeCurrent(raw int16) (float64, error) {
	if !e.calibrated {
		return 0, fmt.Errorf("current: %w", common.ErrNotConfigured)
	}
	return float64(raw) * e.applied.CurrentLSB, nil
}

// DecodePower converts a power register value to watts using the applied
// calibration.
func (e *Engine) DecodePower(raw uint16) (float64, error) {
	if !e.calibrated {
		return 0, fmt.Errorf("power: %w", common.ErrNotConfigured)
	}
	return float64(raw) * e.applied.PowerLSB, nil
}

// Raw holds result register values. Channels tells which of them were read.
type Raw struct {
	Channels Channel
	Shunt    int16
	Bus      uint16
	Power    uint16
	Current  int16
}

// Data is a decoded measurement. Only the quantities in Raw.Channels are set.
type Data struct {
	Raw Raw
	// ShuntVoltage in volts.
	ShuntVoltage float64
	// BusVoltage in volts.
	BusVoltage float64
	// Current in amps.
	Current float64
	// Power in watts.
	Power float64
	// Overflow is set when the current or power computation overflowed. Only
	// Dev.SenseSingle reads the OVF flag; Sense leaves it false since reading
	// the Mask/Enable register clears the conversion ready flag and a latched
	// alert. Use Dev.Flags in continuous modes.
	Overflow bool
}

// Decode converts the registers listed in raw.Channels.
func (e *Engine) Decode(raw Raw) (Data, error) {
	d := Data{Raw: raw}
	if raw.Channels&ChannelShunt != 0 {
		d.ShuntVoltage = DecodeShuntVoltage(raw.Shunt)
	}
	if raw.Channels&ChannelBus != 0 {
		d.BusVoltage = DecodeBusVoltage(raw.Bus)
	}
	var err error
	if raw.Channels&ChannelCurrent != 0 {
		if d.Current, err = e.DecodeCurrent(raw.Current); err != nil {
			return d, err
		}
	}
	if raw.Channels&ChannelPower != 0 {
		if d.Power, err = e.DecodePower(raw.Power); err != nil {
			return d, err
		}
	}
	return d, nil
}

// ShuntPotential returns the shunt voltage.
func (d *Data) ShuntPotential() physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(d.ShuntVoltage * float64(physic.Volt)))
}

// BusPotential returns the bus voltage.
func (d *Data) BusPotential() physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(d.BusVoltage * float64(physic.Volt)))
}

// ElectricCurrent returns the current.
func (d *Data) ElectricCurrent() physic.ElectricCurrent {
	return physic.ElectricCurrent(math.Round(d.Current * float64(physic.Ampere)))
}

// PowerDraw returns the power.
func (d *Data) PowerDraw() physic.Power {
	return physic.Power(math.Round(d.Power * float64(physic.Watt)))
}

func (d Data) String() string {
	return fmt.Sprintf("Bus: %s, Shunt: %s, Current: %s, Power: %s",
		d.BusPotential(), d.ShuntPotential(), d.ElectricCurrent(), d.PowerDraw())
}

// ConversionDuration returns the time one result takes in the current mode.
func (e *Engine) ConversionDuration() time.Duration {
	return e.cfg.ConversionDuration()
}
