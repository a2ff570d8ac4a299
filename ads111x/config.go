// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ads111x

import (
	"fmt"
	"math"
	"time"

	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3/physic"
)

// Gain is the programmable gain amplifier setting. It selects the full scale
// range of the converter.
type Gain uint8

const (
	PGA6144 Gain = iota // ±6.144V
	PGA4096             // ±4.096V
	PGA2048             // ±2.048V, the power-on default
	PGA1024             // ±1.024V
	PGA512              // ±0.512V
	PGA256              // ±0.256V
)

var fullScaleRanges = [...]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256}

func (g Gain) valid() bool {
	return int(g) < len(fullScaleRanges)
}

// FullScale returns the full scale range in volts.
func (g Gain) FullScale() float64 {
	if !g.valid() {
		return math.NaN()
	}
	return fullScaleRanges[g]
}

// LSB returns the voltage represented by one count.
func (g Gain) LSB() float64 {
	return g.FullScale() / codeSpan
}

func (g Gain) String() string {
	if !g.valid() {
		return fmt.Sprintf("Gain(%d)", uint8(g))
	}
	return fmt.Sprintf("±%.3fV", fullScaleRanges[g])
}

// Mux selects the input pair measured by the converter.
type Mux uint8

const (
	AIN01   Mux = iota // AIN0 - AIN1, the power-on default
	AIN03              // AIN0 - AIN3
	AIN13              // AIN1 - AIN3
	AIN23              // AIN2 - AIN3
	AIN0GND            // AIN0 - GND
	AIN1GND            // AIN1 - GND
	AIN2GND            // AIN2 - GND
	AIN3GND            // AIN3 - GND
)

var muxNames = [...]string{"AIN0-AIN1", "AIN0-AIN3", "AIN1-AIN3", "AIN2-AIN3", "AIN0-GND", "AIN1-GND", "AIN2-GND", "AIN3-GND"}

func (m Mux) valid() bool {
	return int(m) < len(muxNames)
}

// SingleEnded returns true if the negative input is ground.
func (m Mux) SingleEnded() bool {
	return m >= AIN0GND && m.valid()
}

func (m Mux) String() string {
	if !m.valid() {
		return fmt.Sprintf("Mux(%d)", uint8(m))
	}
	return muxNames[m]
}

// SamplingRate is the data rate of the converter.
type SamplingRate uint8

const (
	Rate8   SamplingRate = iota // 8 samples/second
	Rate16                      // 16 samples/second
	Rate32                      // 32 samples/second
	Rate64                      // 64 samples/second
	Rate128                     // 128 samples/second, the power-on default
	Rate250                     // 250 samples/second
	Rate475                     // 475 samples/second
	Rate860                     // 860 samples/second
)

var samplesPerSecond = [...]int64{8, 16, 32, 64, 128, 250, 475, 860}

func (r SamplingRate) valid() bool {
	return int(r) < len(samplesPerSecond)
}

// Frequency returns the sample rate.
func (r SamplingRate) Frequency() physic.Frequency {
	if !r.valid() {
		return 0
	}
	return physic.Frequency(samplesPerSecond[r]) * physic.Hertz
}

// Period returns the time taken by one conversion, rounded up to the next
// nanosecond.
func (r SamplingRate) Period() time.Duration {
	if !r.valid() {
		return 0
	}
	sps := time.Duration(samplesPerSecond[r])
	return (time.Second + sps - 1) / sps
}

func (r SamplingRate) String() string {
	if !r.valid() {
		return fmt.Sprintf("SamplingRate(%d)", uint8(r))
	}
	return fmt.Sprintf("%dSPS", samplesPerSecond[r])
}

// ComparatorQueue is the number of successive conversions exceeding a
// threshold required before the ALERT/RDY pin asserts.
type ComparatorQueue uint8

const (
	QueueOne      ComparatorQueue = iota // Assert after one conversion
	QueueTwo                             // Assert after two conversions
	QueueFour                            // Assert after four conversions
	QueueDisabled                        // Comparator off, ALERT/RDY high impedance. Default.
)

func (q ComparatorQueue) valid() bool {
	return q <= QueueDisabled
}

func (q ComparatorQueue) String() string {
	switch q {
	case QueueOne:
		return "1"
	case QueueTwo:
		return "2"
	case QueueFour:
		return "4"
	case QueueDisabled:
		return "Disabled"
	}
	return fmt.Sprintf("ComparatorQueue(%d)", uint8(q))
}

// Config register layout.
var (
	fieldOS       = common.Flag(15)
	fieldMux      = common.Field{Offset: 12, Width: 3}
	fieldPGA      = common.Field{Offset: 9, Width: 3}
	fieldMode     = common.Flag(8)
	fieldRate     = common.Field{Offset: 5, Width: 3}
	fieldCompMode = common.Flag(4)
	fieldCompPol  = common.Flag(3)
	fieldCompLat  = common.Flag(2)
	fieldCompQue  = common.Field{Offset: 0, Width: 2}
)

// codeSpan is the number of counts in half the signed conversion range.
const codeSpan = 32768.0

// Config holds the measurement settings of an ADS111x. It's a plain value;
// each device (or simulated device) owns its own copy.
type Config struct {
	gain       Gain
	mux        Mux
	rate       SamplingRate
	queue      ComparatorQueue
	continuous bool
	window     bool
	activeHigh bool
	latching   bool
}

// DefaultConfig returns the device power-on configuration.
func DefaultConfig() Config {
	return Config{gain: PGA2048, mux: AIN01, rate: Rate128, queue: QueueDisabled}
}

// Gain returns the PGA setting.
func (c Config) Gain() Gain { return c.gain }

// Mux returns the input multiplexer setting.
func (c Config) Mux() Mux { return c.mux }

// SamplingRate returns the data rate.
func (c Config) SamplingRate() SamplingRate { return c.rate }

// ComparatorQueue returns the comparator queue setting.
func (c Config) ComparatorQueue() ComparatorQueue { return c.queue }

// Continuous returns true for continuous conversion mode, false for
// single-shot (power-down between conversions).
func (c Config) Continuous() bool { return c.continuous }

// WindowComparator returns true if the comparator is a window comparator.
func (c Config) WindowComparator() bool { return c.window }

// ActiveHigh returns the ALERT/RDY pin polarity.
func (c Config) ActiveHigh() bool { return c.activeHigh }

// Latching returns true if the comparator latches.
func (c Config) Latching() bool { return c.latching }

// SetGain sets the PGA. Remember the threshold registers are codes, so they
// must be rewritten after a gain change.
func (c *Config) SetGain(g Gain) error {
	if !g.valid() {
		return fmt.Errorf("gain %d: %w", uint8(g), common.ErrInvalidArgument)
	}
	c.gain = g
	return nil
}

// SetMux sets the input multiplexer.
func (c *Config) SetMux(m Mux) error {
	if !m.valid() {
		return fmt.Errorf("mux %d: %w", uint8(m), common.ErrInvalidArgument)
	}
	c.mux = m
	return nil
}

// SetSamplingRate sets the data rate.
func (c *Config) SetSamplingRate(r SamplingRate) error {
	if !r.valid() {
		return fmt.Errorf("sampling rate %d: %w", uint8(r), common.ErrInvalidArgument)
	}
	c.rate = r
	return nil
}

// SetComparatorQueue sets the comparator queue.
func (c *Config) SetComparatorQueue(q ComparatorQueue) error {
	if !q.valid() {
		return fmt.Errorf("comparator queue %d: %w", uint8(q), common.ErrInvalidArgument)
	}
	c.queue = q
	return nil
}

// SetContinuous selects continuous (true) or single-shot (false) mode.
func (c *Config) SetContinuous(b bool) { c.continuous = b }

// SetWindowComparator selects a window (true) or traditional comparator.
func (c *Config) SetWindowComparator(b bool) { c.window = b }

// SetActiveHigh sets the ALERT/RDY pin polarity.
func (c *Config) SetActiveHigh(b bool) { c.activeHigh = b }

// SetLatching selects a latching comparator.
func (c *Config) SetLatching(b bool) { c.latching = b }

// Register returns the config register value for the settings. In
// single-shot mode the OS bit is set, so writing the value starts a
// conversion.
func (c Config) Register() uint16 {
	// The setters keep every field in range, so Pack can't fail.
	reg, _ := common.Pack(
		common.FieldValue{Field: fieldOS, Value: common.Bool(!c.continuous)},
		common.FieldValue{Field: fieldMux, Value: uint16(c.mux)},
		common.FieldValue{Field: fieldPGA, Value: uint16(c.gain)},
		common.FieldValue{Field: fieldMode, Value: common.Bool(!c.continuous)},
		common.FieldValue{Field: fieldRate, Value: uint16(c.rate)},
		common.FieldValue{Field: fieldCompMode, Value: common.Bool(c.window)},
		common.FieldValue{Field: fieldCompPol, Value: common.Bool(c.activeHigh)},
		common.FieldValue{Field: fieldCompLat, Value: common.Bool(c.latching)},
		common.FieldValue{Field: fieldCompQue, Value: uint16(c.queue)},
	)
	return reg
}

// DecodeConfig returns the settings held in a config register value. PGA
// codes 6 and 7 are aliases of PGA256.
func DecodeConfig(reg uint16) Config {
	g := Gain(fieldPGA.Get(reg))
	if !g.valid() {
		g = PGA256
	}
	return Config{
		gain:       g,
		mux:        Mux(fieldMux.Get(reg)),
		rate:       SamplingRate(fieldRate.Get(reg)),
		queue:      ComparatorQueue(fieldCompQue.Get(reg)),
		continuous: fieldMode.Get(reg) == 0,
		window:     fieldCompMode.Get(reg) == 1,
		activeHigh: fieldCompPol.Get(reg) == 1,
		latching:   fieldCompLat.Get(reg) == 1,
	}
}

// Converting returns true if the config register value read back from the
// device reports a conversion in progress.
func Converting(reg uint16) bool {
	return fieldOS.Get(reg) == 0
}

// Decode converts a conversion register code into a voltage using the gain
// of the config.
func (c Config) Decode(raw int16) Data {
	return Data{Raw: raw, Voltage: float64(raw) * c.gain.FullScale() / codeSpan}
}

// EncodeVoltage returns the code the converter produces for v at gain g. The
// result is clamped to the signed 16 bit range.
func EncodeVoltage(v float64, g Gain) (int16, error) {
	if !g.valid() {
		return 0, fmt.Errorf("gain %d: %w", uint8(g), common.ErrInvalidArgument)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("voltage NaN: %w", common.ErrInvalidArgument)
	}
	code := math.Floor(v / g.LSB())
	code = math.Max(code, math.MinInt16)
	code = math.Min(code, math.MaxInt16)
	return int16(code), nil
}

func (c Config) String() string {
	mode := "single-shot"
	if c.continuous {
		mode = "continuous"
	}
	return fmt.Sprintf("{Gain: %s, Mux: %s, Rate: %s, Queue: %s, Mode: %s}", c.gain, c.mux, c.rate, c.queue, mode)
}

// Data is a single conversion result.
type Data struct {
	// Raw is the conversion register code.
	Raw int16
	// Voltage is the input voltage in volts.
	Voltage float64
}

// Potential returns the voltage as a physic value.
func (d Data) Potential() physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(d.Voltage * float64(physic.Volt)))
}

func (d Data) String() string {
	return fmt.Sprintf("%s (%d)", d.Potential(), d.Raw)
}
