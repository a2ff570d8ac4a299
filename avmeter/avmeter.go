// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package avmeter

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GermanBionicSystems/meter/ads111x"
	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Unit describes a meter: where its converter and EEPROM live and how the
// measured quantity maps to the converter input.
type Unit struct {
	Name          string
	Address       uint16
	EEPROMAddress uint16
	// Scale is the converter input in volts for one amp, or one volt, at the
	// meter terminals.
	Scale float64
	// Symbol is the unit of the measured quantity.
	Symbol string
}

var (
	// Ameter measures current through an isolated 0.05V/A front end.
	Ameter = Unit{Name: "Ameter", Address: 0x48, EEPROMAddress: 0x51, Scale: 0.05, Symbol: "A"}
	// Vmeter measures voltage through an isolated divider.
	Vmeter = Unit{Name: "Vmeter", Address: 0x49, EEPROMAddress: 0x53, Scale: 0.01591895, Symbol: "V"}
)

// Reading is a calibrated measurement.
type Reading struct {
	// ADC is the converter result.
	ADC ads111x.Data
	// Value is the measured quantity in amps for an Ameter or volts for a
	// Vmeter.
	Value  float64
	symbol string
}

// Current returns Value as a current.
func (r Reading) Current() physic.ElectricCurrent {
	return physic.ElectricCurrent(math.Round(r.Value * float64(physic.Ampere)))
}

// Potential returns Value as a voltage.
func (r Reading) Potential() physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(r.Value * float64(physic.Volt)))
}

func (r Reading) String() string {
	return fmt.Sprintf("%.4f%s", r.Value, r.symbol)
}

// Dev is an A/V meter unit.
type Dev struct {
	unit     Unit
	adc      *ads111x.Dev
	eeprom   *i2c.Dev
	mu       sync.Mutex
	cals     [numGains]Calibration
	shutdown chan struct{}
}

// NewI2C reads the factory calibration of the unit and initializes its
// converter with opts. If opts is nil, ads111x.DefaultOpts are used.
func NewI2C(b i2c.Bus, unit Unit, opts *ads111x.Opts) (*Dev, error) {
	if !(unit.Scale > 0) || math.IsInf(unit.Scale, 1) {
		return nil, fmt.Errorf("avmeter: scale %g: %w", unit.Scale, common.ErrInvalidArgument)
	}
	eeprom := &i2c.Dev{Bus: b, Addr: unit.EEPROMAddress}
	cals, err := readCalibrations(eeprom)
	if err != nil {
		return nil, err
	}
	adc, err := ads111x.NewI2C(b, unit.Address, ads111x.ADS1115, opts)
	if err != nil {
		return nil, fmt.Errorf("avmeter: %w", err)
	}
	return &Dev{unit: unit, adc: adc, eeprom: eeprom, cals: cals}, nil
}

// Unit returns the description of the meter.
func (d *Dev) Unit() Unit {
	return d.unit
}

// ADC returns the converter, for settings the meter doesn't wrap. Change the
// gain with SetGain.
func (d *Dev) ADC() *ads111x.Dev {
	return d.adc
}

// Calibration returns the factory calibration of gain g.
func (d *Dev) Calibration(g ads111x.Gain) (Calibration, error) {
	if int(g) >= numGains {
		return Calibration{}, fmt.Errorf("avmeter: gain %d: %w", uint8(g), common.ErrInvalidArgument)
	}
	return d.cals[g], nil
}

// SetGain changes the converter gain. Readings use the calibration of the
// new gain once the change was written.
func (d *Dev) SetGain(g ads111x.Gain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.adc.SetGain(g); err != nil {
		return fmt.Errorf("avmeter: %w", err)
	}
	return nil
}

// Sense returns a calibrated reading: the latest conversion in continuous
// mode, a new one otherwise.
func (d *Dev) Sense() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.adc.Config()
	var data ads111x.Data
	var err error
	if cfg.Continuous() {
		data, err = d.adc.Read()
	} else {
		data, err = d.adc.SenseSingle()
	}
	if err != nil {
		return Reading{}, fmt.Errorf("avmeter: %w", err)
	}
	factor := d.cals[cfg.Gain()].Factor()
	return Reading{ADC: data, Value: data.Voltage / d.unit.Scale * factor, symbol: d.unit.Symbol}, nil
}

// SenseContinuous switches the converter to continuous mode and reads it at
// the specified interval, writing results to the returned channel. To
// terminate the continuous read, call Halt().
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("avmeter: SenseContinuous already running")
	}
	if interval < d.adc.ConversionPeriod() {
		return nil, errors.New("avmeter: sample interval is < device sample period")
	}
	if cfg := d.adc.Config(); !cfg.Continuous() {
		if err := d.adc.SetContinuous(true); err != nil {
			return nil, fmt.Errorf("avmeter: %w", err)
		}
	}
	shutdown := make(chan struct{})
	d.shutdown = shutdown
	ch := make(chan Reading, 16)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				if r, err := d.Sense(); err == nil {
					select {
					case ch <- r:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}

// Halt stops a SenseContinuous operation and returns the converter to
// single-shot mode. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		close(d.shutdown)
		d.shutdown = nil
	}
	if err := d.adc.Halt(); err != nil {
		return fmt.Errorf("avmeter: %w", err)
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s: %s, eeprom %s", d.unit.Name, d.adc, d.eeprom)
}

var _ conn.Resource = &Dev{}
