// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultAddress is the I²C address with A0 and A1 tied to GND.
	DefaultAddress uint16 = 0x40
	// UnitAddress is the address of the fixed shunt 10A and 1A units.
	UnitAddress uint16 = 0x41

	regConfig       byte = 0x00
	regShunt        byte = 0x01
	regBus          byte = 0x02
	regPower        byte = 0x03
	regCurrent      byte = 0x04
	regCalibration  byte = 0x05
	regMask         byte = 0x06
	regAlertLimit   byte = 0x07
	regManufacturer byte = 0xfe
	regDie          byte = 0xff

	manufacturerID uint16 = 0x5449 // "TI"
	dieID          uint16 = 0x2260

	conversionTimeout = time.Second
	pollInterval      = time.Millisecond
)

var (
	errContinuous    = errors.New("ina226: continuous conversion is running")
	errNotContinuous = errors.New("ina226: device is not in a continuous mode")
)

// Opts holds the shunt and the conversion settings applied by NewI2C.
type Opts struct {
	ShuntResistance physic.ElectricResistance
	// MaxCurrent is the largest current expected through the shunt. It sets
	// the resolution of the current and power registers.
	MaxCurrent physic.ElectricCurrent
	// CurrentLSB overrides the resolution derived from MaxCurrent when not 0.
	CurrentLSB physic.ElectricCurrent

	Mode                Mode
	Averaging           Averaging
	ShuntConversionTime ConversionTime
	BusConversionTime   ConversionTime
}

// DefaultOpts suit the common breakout boards carrying a 100mΩ shunt.
var DefaultOpts = Opts{
	ShuntResistance:     100 * physic.MilliOhm,
	MaxCurrent:          800 * physic.MilliAmpere,
	Mode:                ShuntAndBus,
	Averaging:           Avg16,
	ShuntConversionTime: CT1100us,
	BusConversionTime:   CT1100us,
}

// INA226_10A is the 10A unit with a 5mΩ shunt. Use it with UnitAddress.
var INA226_10A = Opts{
	ShuntResistance:     5 * physic.MilliOhm,
	MaxCurrent:          10 * physic.Ampere,
	Mode:                ShuntAndBus,
	Averaging:           Avg16,
	ShuntConversionTime: CT1100us,
	BusConversionTime:   CT1100us,
}

// INA226_1A is the 1A unit with an 80mΩ shunt. Use it with UnitAddress.
var INA226_1A = Opts{
	ShuntResistance:     80 * physic.MilliOhm,
	MaxCurrent:          1 * physic.Ampere,
	Mode:                ShuntAndBus,
	Averaging:           Avg16,
	ShuntConversionTime: CT1100us,
	BusConversionTime:   CT1100us,
}

// Dev represents an INA226 current and power monitor.
type Dev struct {
	d        *i2c.Dev
	regs     common.Registers
	mu       sync.Mutex
	engine   *Engine
	shutdown chan struct{}
}

// NewI2C returns a monitor on the specified bus and address. It checks the
// device identity, resets it, then writes the calibration and configuration
// from opts. If opts is nil, DefaultOpts are used. opts are validated before
// anything is written.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	e := NewEngine()
	if err := configure(e, opts.ShuntResistance, opts.MaxCurrent, opts.CurrentLSB); err != nil {
		return nil, fmt.Errorf("ina226: %w", err)
	}
	cfg := DefaultConfig()
	if err := cfg.SetMode(opts.Mode); err != nil {
		return nil, fmt.Errorf("ina226: %w", err)
	}
	if err := cfg.SetAveraging(opts.Averaging); err != nil {
		return nil, fmt.Errorf("ina226: %w", err)
	}
	if err := cfg.SetConversionTime(opts.ShuntConversionTime, opts.BusConversionTime); err != nil {
		return nil, fmt.Errorf("ina226: %w", err)
	}

	d := &i2c.Dev{Bus: b, Addr: addr}
	dev := &Dev{d: d, regs: common.Registers{Conn: d}, engine: e}
	id, err := dev.regs.Read16(regManufacturer)
	if err != nil {
		return nil, fmt.Errorf("ina226: %w", err)
	}
	if id != manufacturerID {
		return nil, fmt.Errorf("ina226: unexpected manufacturer ID 0x%04x", id)
	}
	if id, err = dev.regs.Read16(regDie); err != nil {
		return nil, fmt.Errorf("ina226: %w", err)
	}
	if id != dieID {
		return nil, fmt.Errorf("ina226: unexpected die ID 0x%04x", id)
	}
	if err := dev.reset(); err != nil {
		return nil, err
	}
	if err := dev.writeCalibration(); err != nil {
		return nil, err
	}
	if err := dev.writeConfig(cfg); err != nil {
		return nil, err
	}
	return dev, nil
}

func configure(e *Engine, shunt physic.ElectricResistance, max, lsb physic.ElectricCurrent) error {
	ohms := float64(shunt) / float64(physic.Ohm)
	if lsb != 0 {
		return e.ConfigureLSB(ohms, float64(lsb)/float64(physic.Ampere))
	}
	return e.Configure(ohms, float64(max)/float64(physic.Ampere))
}

// reset sets the RST bit and checks the registers came back to their
// power-on values.
func (dev *Dev) reset() error {
	def := DefaultConfig()
	reg, _ := fieldReset.Set(def.Register(), 1)
	if err := dev.regs.Write16(regConfig, reg); err != nil {
		return fmt.Errorf("ina226: reset %w", err)
	}
	dev.engine.Reset()
	got, err := dev.regs.Read16(regConfig)
	if err != nil {
		return fmt.Errorf("ina226: reset %w", err)
	}
	if got != def.Register() {
		return fmt.Errorf("ina226: config 0x%04x after reset", got)
	}
	return nil
}

// writeCalibration writes the pending calibration and applies it to the
// engine once the write succeeded.
func (dev *Dev) writeCalibration() error {
	cal, err := dev.engine.CalibrationRegister()
	if err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	if err := dev.regs.Write16(regCalibration, cal); err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	return dev.engine.ApplyCalibration()
}

// writeConfig writes cfg and records it in the engine once the write
// succeeded.
func (dev *Dev) writeConfig(cfg Config) error {
	if err := dev.regs.Write16(regConfig, cfg.Register()); err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	dev.engine.SetConfig(cfg)
	return nil
}

// update applies fn to a copy of the current settings and writes the result.
func (dev *Dev) update(fn func(*Config) error) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	next := dev.engine.Config()
	if err := fn(&next); err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	return dev.writeConfig(next)
}

// Config returns a copy of the settings currently applied to the device.
func (dev *Dev) Config() Config {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.engine.Config()
}

// SetMode changes the operating mode. Setting a triggered mode starts a
// conversion, SenseSingle does both and waits for the result.
func (dev *Dev) SetMode(m Mode) error {
	return dev.update(func(c *Config) error { return c.SetMode(m) })
}

// SetAveraging changes the number of samples averaged per result.
func (dev *Dev) SetAveraging(a Averaging) error {
	return dev.update(func(c *Config) error { return c.SetAveraging(a) })
}

// SetConversionTime changes the shunt and bus conversion times.
func (dev *Dev) SetConversionTime(shunt, bus ConversionTime) error {
	return dev.update(func(c *Config) error { return c.SetConversionTime(shunt, bus) })
}

// ConversionDuration returns the time one result takes with the current
// settings.
func (dev *Dev) ConversionDuration() time.Duration {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.engine.ConversionDuration()
}

// Configure recalibrates the device for a new shunt or maximum current.
// Readings keep using the previous calibration until the calibration register
// write succeeded.
func (dev *Dev) Configure(shunt physic.ElectricResistance, maxCurrent physic.ElectricCurrent) error {
	return dev.calibrate(shunt, maxCurrent, 0)
}

// ConfigureLSB is like Configure with an explicit current resolution.
func (dev *Dev) ConfigureLSB(shunt physic.ElectricResistance, currentLSB physic.ElectricCurrent) error {
	if currentLSB <= 0 {
		return fmt.Errorf("ina226: current LSB %s: %w", currentLSB, common.ErrInvalidArgument)
	}
	return dev.calibrate(shunt, 0, currentLSB)
}

func (dev *Dev) calibrate(shunt physic.ElectricResistance, max, lsb physic.ElectricCurrent) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := configure(dev.engine, shunt, max, lsb); err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	return dev.writeCalibration()
}

// Calibration returns the calibration active on the device.
func (dev *Dev) Calibration() (Calibration, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.engine.Calibration()
}

func (dev *Dev) read(ch Channel) (Data, error) {
	raw := Raw{Channels: ch}
	var err error
	if ch&ChannelShunt != 0 {
		if raw.Shunt, err = dev.regs.ReadInt16(regShunt); err != nil {
			return Data{}, fmt.Errorf("ina226: %w", err)
		}
	}
	if ch&ChannelBus != 0 {
		if raw.Bus, err = dev.regs.Read16(regBus); err != nil {
			return Data{}, fmt.Errorf("ina226: %w", err)
		}
	}
	if ch&ChannelPower != 0 {
		if raw.Power, err = dev.regs.Read16(regPower); err != nil {
			return Data{}, fmt.Errorf("ina226: %w", err)
		}
	}
	if ch&ChannelCurrent != 0 {
		if raw.Current, err = dev.regs.ReadInt16(regCurrent); err != nil {
			return Data{}, fmt.Errorf("ina226: %w", err)
		}
	}
	d, err := dev.engine.Decode(raw)
	if err != nil {
		return d, fmt.Errorf("ina226: %w", err)
	}
	return d, nil
}

// Sense returns the latest results of a continuous mode. Only the quantities
// the mode measures are set. Overflow is not read, see Flags.
func (dev *Dev) Sense() (Data, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	m := dev.engine.Mode()
	if !m.Continuous() {
		return Data{}, errNotContinuous
	}
	return dev.read(m.Channels())
}

// SenseSingle triggers one conversion in mode m, waits for the conversion
// ready flag and returns the result. The device powers down afterwards.
func (dev *Dev) SenseSingle(m Mode) (Data, error) {
	if !m.Single() {
		return Data{}, fmt.Errorf("ina226: %s is not a triggered mode: %w", m, common.ErrInvalidArgument)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil || dev.engine.Mode().Continuous() {
		return Data{}, errContinuous
	}
	next := dev.engine.Config()
	_ = next.SetMode(m)
	if err := dev.writeConfig(next); err != nil {
		return Data{}, err
	}
	time.Sleep(next.ConversionDuration())
	var flags Flags
	deadline := time.Now().Add(conversionTimeout)
	for {
		mask, err := dev.regs.Read16(regMask)
		if err != nil {
			return Data{}, fmt.Errorf("ina226: %w", err)
		}
		if flags = DecodeFlags(mask); flags.ConversionReady {
			break
		}
		if time.Now().After(deadline) {
			return Data{}, fmt.Errorf("ina226: %w", common.ErrTimeout)
		}
		time.Sleep(pollInterval)
	}
	dev.engine.ConversionComplete()
	d, err := dev.read(m.Channels())
	d.Overflow = flags.Overflow
	return d, err
}

// SenseContinuous switches the device to a continuous mode if needed and
// reads it at the specified interval, writing results to the returned
// channel. A triggered mode is replaced by its continuous counterpart,
// PowerDown by ShuntAndBus. To terminate the continuous read, call Halt().
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan Data, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		return nil, errors.New("ina226: SenseContinuous already running")
	}
	next := dev.engine.Config()
	switch m := next.Mode(); {
	case m.Single():
		_ = next.SetMode(m + ShuntVoltage - ShuntVoltageSingle)
	case m == PowerDown:
		_ = next.SetMode(ShuntAndBus)
	}
	if interval < next.ConversionDuration() {
		return nil, errors.New("ina226: sample interval is < device conversion time")
	}
	if next != dev.engine.Config() {
		if err := dev.writeConfig(next); err != nil {
			return nil, err
		}
	}
	shutdown := make(chan struct{})
	dev.shutdown = shutdown
	ch := make(chan Data, 16)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				if d, err := dev.Sense(); err == nil {
					select {
					case ch <- d:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}

// Halt stops a SenseContinuous operation and powers the device down.
// Implements conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		close(dev.shutdown)
		dev.shutdown = nil
	}
	if dev.engine.Mode() == PowerDown {
		return nil
	}
	next := dev.engine.Config()
	_ = next.SetMode(PowerDown)
	return dev.writeConfig(next)
}

// SetAlert selects the condition driving the ALERT pin. limit is in volts for
// the shunt and bus alerts and in watts for AlertPowerOver. It is ignored for
// AlertConversionReady and AlertNone.
func (dev *Dev) SetAlert(a Alert, limit float64, latch, activeHigh bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	mask, err := AlertMask(a, latch, activeHigh)
	if err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	reg, err := dev.engine.AlertLimitRegister(a, limit)
	if err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	if err := dev.regs.Write16(regAlertLimit, reg); err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	if err := dev.regs.Write16(regMask, mask); err != nil {
		return fmt.Errorf("ina226: %w", err)
	}
	return nil
}

// ReadAlert returns the condition driving the ALERT pin. If the register
// can't be read it returns AlertUnknown and an error wrapping
// common.ErrUnknown.
func (dev *Dev) ReadAlert() (Alert, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	mask, err := dev.regs.Read16(regMask)
	if err != nil {
		return AlertUnknown, fmt.Errorf("ina226: %w: %w", common.ErrUnknown, err)
	}
	return DecodeAlert(mask), nil
}

// AlertLimit returns the limit of the selected alert, in volts or watts.
func (dev *Dev) AlertLimit() (float64, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	mask, err := dev.regs.Read16(regMask)
	if err != nil {
		return 0, fmt.Errorf("ina226: %w", err)
	}
	reg, err := dev.regs.Read16(regAlertLimit)
	if err != nil {
		return 0, fmt.Errorf("ina226: %w", err)
	}
	v, err := dev.engine.DecodeAlertLimit(DecodeAlert(mask), reg)
	if err != nil {
		return 0, fmt.Errorf("ina226: %w", err)
	}
	return v, nil
}

// Flags returns the status bits of the Mask/Enable register. Reading them
// clears the conversion ready flag, and a latched alert.
func (dev *Dev) Flags() (Flags, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	mask, err := dev.regs.Read16(regMask)
	if err != nil {
		return Flags{}, fmt.Errorf("ina226: %w", err)
	}
	return DecodeFlags(mask), nil
}

// AlertOccurred returns true if the selected alert condition occurred.
func (dev *Dev) AlertOccurred() (bool, error) {
	f, err := dev.Flags()
	return f.AlertFunction, err
}

// Reset resets the device to its power-on settings and writes the
// calibration again. The device is left in the ShuntAndBus mode.
func (dev *Dev) Reset() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		return errContinuous
	}
	if err := dev.reset(); err != nil {
		return err
	}
	return dev.writeCalibration()
}

// ManufacturerID returns the manufacturer ID register, 0x5449.
func (dev *Dev) ManufacturerID() (uint16, error) {
	return dev.readID(regManufacturer)
}

// DieID returns the die ID register, 0x2260.
func (dev *Dev) DieID() (uint16, error) {
	return dev.readID(regDie)
}

func (dev *Dev) readID(reg byte) (uint16, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	v, err := dev.regs.Read16(reg)
	if err != nil {
		return 0, fmt.Errorf("ina226: %w", err)
	}
	return v, nil
}

func (dev *Dev) String() string {
	return fmt.Sprintf("ina226: %s", dev.d.String())
}

var _ conn.Resource = &Dev{}
