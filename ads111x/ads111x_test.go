// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ads111x

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/meter/common"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

const addr = DefaultAddress

// singleShotOpts gives the config register value 0xc3e3.
var singleShotOpts = Opts{
	Gain:            PGA4096,
	Mux:             AIN0GND,
	SamplingRate:    Rate860,
	ComparatorQueue: QueueDisabled,
}

func TestNew(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0x04, 0x83}},
	}, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, ADS1115, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := dev.Config()
	if !cfg.Continuous() || cfg.Gain() != PGA2048 || cfg.SamplingRate() != Rate128 {
		t.Errorf("unexpected default config %s", &cfg)
	}
	if s := dev.String(); len(s) == 0 {
		t.Error("invalid String() result")
	}

	if _, err := NewI2C(pb, addr, Variant("ADS1015"), nil); err == nil {
		t.Error("expected error for invalid variant")
	}
	bad := DefaultOpts
	bad.Gain = Gain(7)
	if _, err := NewI2C(pb, addr, ADS1115, &bad); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}
}

func TestSenseSingle(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0xc3, 0xe3}},
		// Start the conversion.
		{Addr: addr, W: []byte{regConfig, 0xc3, 0xe3}},
		// Still converting.
		{Addr: addr, W: []byte{regConfig}, R: []byte{0x43, 0xe3}},
		// Done.
		{Addr: addr, W: []byte{regConfig}, R: []byte{0xc3, 0xe3}},
		{Addr: addr, W: []byte{regConversion}, R: []byte{0xc0, 0x00}},
	}, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, ADS1115, &singleShotOpts)
	if err != nil {
		t.Fatal(err)
	}
	d, err := dev.SenseSingle()
	if err != nil {
		t.Fatal(err)
	}
	if d.Raw != -16384 || d.Voltage != -2.048 {
		t.Errorf("SenseSingle()=%s expected -2.048V (-16384)", d)
	}
}

func TestSenseSingleContinuous(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0x04, 0x83}},
		{Addr: addr, W: []byte{regConfig, 0x85, 0x83}},
	}, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, ADS1115, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseSingle(); err == nil {
		t.Error("expected SenseSingle to fail in continuous mode")
	}
	if err := dev.SetContinuous(false); err != nil {
		t.Fatal(err)
	}
	if cfg := dev.Config(); cfg.Continuous() {
		t.Error("SetContinuous(false) left continuous mode")
	}
}

func TestVariants(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		// Gain, mux and comparator are forced to the ADS1113 values.
		{Addr: addr, W: []byte{regConfig, 0x85, 0xe3}},
	}, DontPanic: true}
	defer pb.Close()
	opts := singleShotOpts
	opts.ComparatorQueue = QueueOne
	dev, err := NewI2C(pb, addr, ADS1113, &opts)
	if err != nil {
		t.Fatal(err)
	}
	var tests = []struct {
		name string
		err  error
	}{
		{"gain", dev.SetGain(PGA256)},
		{"mux", dev.SetMux(AIN1GND)},
		{"queue", dev.SetComparatorQueue(QueueOne)},
		{"comparator", dev.SetComparator(true, false, false)},
		{"thresholds", dev.SetThresholds(100, -100)},
	}
	for _, test := range tests {
		if !errors.Is(test.err, common.ErrNotSupported) {
			t.Errorf("%s: expected ErrNotSupported got %v", test.name, test.err)
		}
	}
	if cfg := dev.Config(); cfg.Gain() != PGA2048 || cfg.Mux() != AIN01 || cfg.ComparatorQueue() != QueueDisabled {
		t.Errorf("ADS1113 config not normalized: %s", &cfg)
	}
}

func TestSetGain(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0x04, 0x83}},
		{Addr: addr, W: []byte{regConfig, 0x0a, 0x83}},
		{Addr: addr, W: []byte{regConversion}, R: []byte{0x7f, 0xff}},
	}, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, ADS1114, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetGain(Gain(9)); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}
	if err := dev.SetGain(PGA256); err != nil {
		t.Fatal(err)
	}
	d, err := dev.Read()
	if err != nil {
		t.Fatal(err)
	}
	if expected := float64(32767) * PGA256.FullScale() / 32768; d.Voltage != expected {
		t.Errorf("Read()=%g expected %g", d.Voltage, expected)
	}
	// A failed write must leave the applied settings alone.
	if err := dev.SetSamplingRate(Rate8); err == nil {
		t.Error("expected write error past the end of the playback")
	}
	if cfg := dev.Config(); cfg.SamplingRate() != Rate128 {
		t.Errorf("SamplingRate()=%s after failed write", cfg.SamplingRate())
	}
}

func TestThresholds(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0x04, 0x83}},
		{Addr: addr, W: []byte{regHighThreshold, 0x40, 0x00}},
		{Addr: addr, W: []byte{regLowThreshold, 0xc0, 0x00}},
		{Addr: addr, W: []byte{regHighThreshold}, R: []byte{0x40, 0x00}},
		{Addr: addr, W: []byte{regLowThreshold}, R: []byte{0xc0, 0x00}},
		// 1.024V and -0.512V at ±2.048V
		{Addr: addr, W: []byte{regHighThreshold, 0x40, 0x00}},
		{Addr: addr, W: []byte{regLowThreshold, 0xe0, 0x00}},
	}, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, ADS1115, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetThresholds(-1, 1); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}
	if err := dev.SetThresholds(16384, -16384); err != nil {
		t.Fatal(err)
	}
	high, low, err := dev.Thresholds()
	if err != nil {
		t.Fatal(err)
	}
	if high != 16384 || low != -16384 {
		t.Errorf("Thresholds()=%d,%d expected 16384,-16384", high, low)
	}
	if err := dev.SetThresholdVoltages(1.024, -0.512); err != nil {
		t.Fatal(err)
	}
}

func TestSenseContinuous(t *testing.T) {
	ops := []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0xc3, 0xe3}},
		// Switch to continuous.
		{Addr: addr, W: []byte{regConfig, 0x42, 0xe3}},
	}
	codes := [][]byte{{0x00, 0x00}, {0x20, 0x00}, {0xe0, 0x00}}
	expected := []float64{0, 1.024, -1.024}
	for _, c := range codes {
		ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{regConversion}, R: c})
	}
	// Halt returns to single-shot.
	ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{regConfig, 0xc3, 0xe3}})
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()
	record := &i2ctest.Record{Bus: pb}

	dev, err := NewI2C(record, addr, ADS1115, &singleShotOpts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(time.Microsecond); err == nil {
		t.Error("expected error for interval shorter than the conversion period")
	}
	ch, err := dev.SenseContinuous(20 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(20 * time.Millisecond); err == nil {
		t.Error("expected error starting SenseContinuous twice")
	}
	for i := range expected {
		d := <-ch
		if d.Voltage != expected[i] {
			t.Errorf("reading %d: got %g expected %g", i, d.Voltage, expected[i])
		}
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	if cfg := dev.Config(); cfg.Continuous() {
		t.Error("Halt() did not leave continuous mode")
	}
	t.Logf("record.ops=%#v", record.Ops)
}

func TestGeneralReset(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{regConfig, 0xc3, 0xe3}},
		{Addr: generalCallAddress, W: []byte{generalCallReset}},
	}, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, ADS1115, &singleShotOpts)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.GeneralReset(); err != nil {
		t.Fatal(err)
	}
	if cfg := dev.Config(); cfg.Register() != 0x8583 {
		t.Errorf("config after reset 0x%04x expected 0x8583", cfg.Register())
	}
}
