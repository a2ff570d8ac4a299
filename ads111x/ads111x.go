// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ads111x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

// Variant represents the model of the device.
type Variant string

const (
	// ADS1113 has a fixed ±2.048V range, a single differential input and no
	// comparator.
	ADS1113 Variant = "ADS1113"
	// ADS1114 adds the PGA and the comparator.
	ADS1114 Variant = "ADS1114"
	// ADS1115 adds the four input multiplexer.
	ADS1115 Variant = "ADS1115"

	// DefaultAddress is the I²C address with the ADDR pin tied to GND.
	DefaultAddress uint16 = 0x48

	regConversion    byte = 0x00
	regConfig        byte = 0x01
	regLowThreshold  byte = 0x02
	regHighThreshold byte = 0x03

	generalCallAddress uint16 = 0x00
	generalCallReset   byte   = 0x06

	conversionTimeout = time.Second
	pollInterval      = time.Millisecond
)

var (
	errInvalidVariant = errors.New("ads111x: invalid variant")
	errContinuous     = errors.New("ads111x: continuous conversion is running")
)

func (v Variant) valid() bool {
	return v == ADS1113 || v == ADS1114 || v == ADS1115
}

func (v Variant) hasPGA() bool        { return v != ADS1113 }
func (v Variant) hasMux() bool        { return v == ADS1115 }
func (v Variant) hasComparator() bool { return v != ADS1113 }

// normalize replaces the settings a variant can't change with the values the
// silicon actually uses.
func (v Variant) normalize(cfg *Config) {
	if !v.hasPGA() {
		cfg.gain = PGA2048
	}
	if !v.hasMux() {
		cfg.mux = AIN01
	}
	if !v.hasComparator() {
		cfg.queue = QueueDisabled
		cfg.window = false
		cfg.activeHigh = false
		cfg.latching = false
	}
}

// Opts holds the settings applied by NewI2C.
type Opts struct {
	Gain            Gain
	Mux             Mux
	SamplingRate    SamplingRate
	ComparatorQueue ComparatorQueue
	// Continuous starts free running conversions. Otherwise the device
	// powers down between SenseSingle calls.
	Continuous bool
}

// DefaultOpts are the settings used when NewI2C is called with nil opts.
var DefaultOpts = Opts{
	Gain:            PGA2048,
	Mux:             AIN01,
	SamplingRate:    Rate128,
	ComparatorQueue: QueueDisabled,
	Continuous:      true,
}

// Dev represents an ADS1113, ADS1114 or ADS1115 analog to digital converter.
type Dev struct {
	bus      i2c.Bus
	d        *i2c.Dev
	regs     common.Registers
	variant  Variant
	mu       sync.Mutex
	cfg      Config
	shutdown chan struct{}
}

// NewI2C returns a converter on the specified bus and address, and writes the
// settings from opts. If opts is nil, DefaultOpts are used. Settings the
// variant doesn't support are ignored.
func NewI2C(b i2c.Bus, addr uint16, variant Variant, opts *Opts) (*Dev, error) {
	if !variant.valid() {
		return nil, errInvalidVariant
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	cfg := DefaultConfig()
	if err := cfg.SetGain(opts.Gain); err != nil {
		return nil, fmt.Errorf("ads111x: %w", err)
	}
	if err := cfg.SetMux(opts.Mux); err != nil {
		return nil, fmt.Errorf("ads111x: %w", err)
	}
	if err := cfg.SetSamplingRate(opts.SamplingRate); err != nil {
		return nil, fmt.Errorf("ads111x: %w", err)
	}
	if err := cfg.SetComparatorQueue(opts.ComparatorQueue); err != nil {
		return nil, fmt.Errorf("ads111x: %w", err)
	}
	cfg.SetContinuous(opts.Continuous)
	variant.normalize(&cfg)

	d := &i2c.Dev{Bus: b, Addr: addr}
	dev := &Dev{bus: b, d: d, regs: common.Registers{Conn: d}, variant: variant}
	if err := dev.writeConfig(cfg); err != nil {
		return nil, err
	}
	return dev, nil
}

// writeConfig writes cfg to the device. The stored snapshot only changes once
// the write succeeded. Must be called with mu held, or before the Dev is
// shared.
func (dev *Dev) writeConfig(cfg Config) error {
	if err := dev.regs.Write16(regConfig, cfg.Register()); err != nil {
		return fmt.Errorf("ads111x: %w", err)
	}
	dev.cfg = cfg
	return nil
}

// update applies fn to a copy of the current settings and writes the result.
func (dev *Dev) update(fn func(*Config) error) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	next := dev.cfg
	if err := fn(&next); err != nil {
		return fmt.Errorf("ads111x: %w", err)
	}
	return dev.writeConfig(next)
}

func (dev *Dev) unsupported(what string) error {
	return fmt.Errorf("ads111x: %s on %s: %w", what, dev.variant, common.ErrNotSupported)
}

// Config returns a copy of the settings currently applied to the device.
func (dev *Dev) Config() Config {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.cfg
}

// Variant returns the model of the device.
func (dev *Dev) Variant() Variant {
	return dev.variant
}

// SetGain changes the PGA. Thresholds set with SetThresholds are codes, and
// must be rewritten after a gain change.
func (dev *Dev) SetGain(g Gain) error {
	if !dev.variant.hasPGA() {
		return dev.unsupported("gain")
	}
	return dev.update(func(c *Config) error { return c.SetGain(g) })
}

// SetMux changes the input multiplexer.
func (dev *Dev) SetMux(m Mux) error {
	if !dev.variant.hasMux() {
		return dev.unsupported("multiplexer")
	}
	return dev.update(func(c *Config) error { return c.SetMux(m) })
}

// SetSamplingRate changes the data rate.
func (dev *Dev) SetSamplingRate(r SamplingRate) error {
	return dev.update(func(c *Config) error { return c.SetSamplingRate(r) })
}

// SetComparatorQueue changes the comparator queue, or disables the
// comparator.
func (dev *Dev) SetComparatorQueue(q ComparatorQueue) error {
	if !dev.variant.hasComparator() {
		return dev.unsupported("comparator")
	}
	return dev.update(func(c *Config) error { return c.SetComparatorQueue(q) })
}

// SetComparator sets the comparator type, ALERT/RDY polarity and latching.
func (dev *Dev) SetComparator(window, activeHigh, latching bool) error {
	if !dev.variant.hasComparator() {
		return dev.unsupported("comparator")
	}
	return dev.update(func(c *Config) error {
		c.SetWindowComparator(window)
		c.SetActiveHigh(activeHigh)
		c.SetLatching(latching)
		return nil
	})
}

// SetContinuous switches between continuous conversions and single-shot
// mode, where the device powers down between SenseSingle calls.
func (dev *Dev) SetContinuous(continuous bool) error {
	return dev.update(func(c *Config) error {
		c.SetContinuous(continuous)
		return nil
	})
}

// ConversionPeriod returns the duration of one conversion at the current data
// rate.
func (dev *Dev) ConversionPeriod() time.Duration {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.cfg.rate.Period()
}

// SenseSingle starts a single conversion, waits for it to complete, and
// returns the result. The device must be in single-shot mode.
func (dev *Dev) SenseSingle() (Data, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.cfg.continuous {
		return Data{}, errContinuous
	}
	// In single-shot mode the register has OS set, which starts a conversion.
	if err := dev.writeConfig(dev.cfg); err != nil {
		return Data{}, err
	}
	time.Sleep(dev.cfg.rate.Period())
	deadline := time.Now().Add(conversionTimeout)
	for {
		reg, err := dev.regs.Read16(regConfig)
		if err != nil {
			return Data{}, fmt.Errorf("ads111x: %w", err)
		}
		if !Converting(reg) {
			break
		}
		if time.Now().After(deadline) {
			return Data{}, fmt.Errorf("ads111x: %w", common.ErrTimeout)
		}
		time.Sleep(pollInterval)
	}
	return dev.read()
}

func (dev *Dev) read() (Data, error) {
	raw, err := dev.regs.ReadInt16(regConversion)
	if err != nil {
		return Data{}, fmt.Errorf("ads111x: %w", err)
	}
	return dev.cfg.Decode(raw), nil
}

// Read returns the most recent conversion result.
func (dev *Dev) Read() (Data, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.read()
}

// SenseContinuous switches the device to continuous mode and reads it at the
// specified interval, writing results to the returned channel. To terminate
// the continuous read, call Halt().
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan Data, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		return nil, errors.New("ads111x: SenseContinuous already running")
	}
	if interval < dev.cfg.rate.Period() {
		return nil, errors.New("ads111x: sample interval is < device sample period")
	}
	if !dev.cfg.continuous {
		next := dev.cfg
		next.SetContinuous(true)
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
				if d, err := dev.Read(); err == nil {
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

// Halt stops a SenseContinuous operation and returns the device to
// single-shot mode, where it powers down between conversions. Implements
// conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		close(dev.shutdown)
		dev.shutdown = nil
	}
	if !dev.cfg.continuous {
		return nil
	}
	next := dev.cfg
	next.SetContinuous(false)
	return dev.writeConfig(next)
}

// Thresholds returns the raw comparator threshold codes.
func (dev *Dev) Thresholds() (high, low int16, err error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if high, err = dev.regs.ReadInt16(regHighThreshold); err != nil {
		return high, low, fmt.Errorf("ads111x: %w", err)
	}
	if low, err = dev.regs.ReadInt16(regLowThreshold); err != nil {
		return high, low, fmt.Errorf("ads111x: %w", err)
	}
	return high, low, nil
}

// SetThresholds writes the raw comparator threshold codes. high must be
// greater than low.
func (dev *Dev) SetThresholds(high, low int16) error {
	if !dev.variant.hasComparator() {
		return dev.unsupported("thresholds")
	}
	if high <= low {
		return fmt.Errorf("ads111x: threshold high %d <= low %d: %w", high, low, common.ErrInvalidArgument)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.writeThresholds(high, low)
}

func (dev *Dev) writeThresholds(high, low int16) error {
	if err := dev.regs.Write16(regHighThreshold, uint16(high)); err != nil {
		return fmt.Errorf("ads111x: %w", err)
	}
	if err := dev.regs.Write16(regLowThreshold, uint16(low)); err != nil {
		return fmt.Errorf("ads111x: %w", err)
	}
	return nil
}

// SetThresholdVoltages converts the voltages to codes at the current gain and
// writes them to the threshold registers.
func (dev *Dev) SetThresholdVoltages(high, low float64) error {
	if !dev.variant.hasComparator() {
		return dev.unsupported("thresholds")
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	h, err := EncodeVoltage(high, dev.cfg.gain)
	if err != nil {
		return fmt.Errorf("ads111x: %w", err)
	}
	l, err := EncodeVoltage(low, dev.cfg.gain)
	if err != nil {
		return fmt.Errorf("ads111x: %w", err)
	}
	if h <= l {
		return fmt.Errorf("ads111x: threshold high %gV <= low %gV: %w", high, low, common.ErrInvalidArgument)
	}
	return dev.writeThresholds(h, l)
}

// GeneralReset resets the device using the I²C general call. Note that
// every device on the bus that responds to the general call is reset.
func (dev *Dev) GeneralReset() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	gc := &i2c.Dev{Bus: dev.bus, Addr: generalCallAddress}
	if err := gc.Tx([]byte{generalCallReset}, nil); err != nil {
		return fmt.Errorf("ads111x: general reset %w", err)
	}
	dev.cfg = DefaultConfig()
	dev.variant.normalize(&dev.cfg)
	return nil
}

func (dev *Dev) String() string {
	return fmt.Sprintf("%s: %s", dev.variant, dev.d.String())
}

var _ conn.Resource = &Dev{}
