// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package avmeter

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/meter/ads111x"
	"github.com/GermanBionicSystems/meter/common"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// block returns an EEPROM calibration block.
func block(hope, actual int16) []byte {
	b := []byte{0x01, byte(uint16(hope) >> 8), byte(hope), byte(uint16(actual) >> 8), byte(actual), 0, 0xff, 0xff}
	b[5] = common.XOR8(b[:5])
	return b
}

// factoryBlocks are the calibrations stored in real units. Blank gains read
// as -1,-1.
var factoryBlocks = map[string]map[ads111x.Gain][2]int16{
	"Ameter": {ads111x.PGA512: {6400, -6423}},
	"Vmeter": {ads111x.PGA4096: {7641, 7613}, ads111x.PGA512: {5094, 5073}},
}

// eepromOps returns the calibration reads of NewI2C for u. PGA256 holds a
// block without an actual code.
func eepromOps(u Unit) []i2ctest.IO {
	ops := make([]i2ctest.IO, 0, numGains)
	for g := range numGains {
		b := block(-1, -1)
		if c, ok := factoryBlocks[u.Name][ads111x.Gain(g)]; ok {
			b = block(c[0], c[1])
		} else if ads111x.Gain(g) == ads111x.PGA256 {
			b = block(1000, 0)
		}
		ops = append(ops, i2ctest.IO{Addr: u.EEPROMAddress, W: []byte{calibrationBase + byte(g)*8}, R: b})
	}
	return ops
}

// singleShot gives the config register value 0x89e3.
var singleShot = ads111x.Opts{
	Gain:            ads111x.PGA512,
	Mux:             ads111x.AIN01,
	SamplingRate:    ads111x.Rate860,
	ComparatorQueue: ads111x.QueueDisabled,
}

func TestDecodeCalibration(t *testing.T) {
	c, err := DecodeCalibration(block(6400, -6423))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Calibration{Hope: 6400, Actual: -6423}, c); diff != "" {
		t.Errorf("DecodeCalibration mismatch (-want +got):\n%s", diff)
	}
	if f := c.Factor(); f != 6400.0/-6423.0 {
		t.Errorf("Factor()=%g", f)
	}
	if f := (Calibration{Hope: 5, Actual: 0}).Factor(); f != 1 {
		t.Errorf("Factor() with no actual code=%g expected 1", f)
	}

	bad := block(6400, -6423)
	bad[5] ^= 0x01
	if _, err := DecodeCalibration(bad); !errors.Is(err, errChecksum) {
		t.Errorf("expected checksum error got %v", err)
	}
	if _, err := DecodeCalibration(bad[:4]); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}
}

func TestAmeterSense(t *testing.T) {
	ops := append(eepromOps(Ameter),
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x01, 0x89, 0xe3}},
		// SenseSingle
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x01, 0x89, 0xe3}},
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x01}, R: []byte{0x89, 0xe3}},
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x00}, R: []byte{0x10, 0x00}},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, Ameter, &singleShot)
	if err != nil {
		t.Fatal(err)
	}
	r, err := dev.Sense()
	if err != nil {
		t.Fatal(err)
	}
	if r.ADC.Raw != 4096 || r.ADC.Voltage != 0.064 {
		t.Errorf("ADC=%s expected 0.064V (4096)", r.ADC)
	}
	if expected := r.ADC.Voltage / 0.05 * (6400.0 / -6423.0); r.Value != expected {
		t.Errorf("Value=%g expected %g", r.Value, expected)
	}
	if a := r.Current(); a > -1275*physic.MilliAmpere || a < -1276*physic.MilliAmpere {
		t.Errorf("Current()=%s expected about -1.2754A", a)
	}
	if s := r.String(); s != "-1.2754A" {
		t.Errorf("String()=%q", s)
	}
	if s := dev.String(); len(s) == 0 {
		t.Error("invalid String() result")
	}
}

func TestInvertingCalibration(t *testing.T) {
	ops := append(eepromOps(Ameter),
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x01, 0x89, 0xe3}},
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x01, 0x89, 0xe3}},
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x01}, R: []byte{0x89, 0xe3}},
		i2ctest.IO{Addr: Ameter.Address, W: []byte{0x00}, R: []byte{0xf0, 0x00}},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, Ameter, &singleShot)
	if err != nil {
		t.Fatal(err)
	}
	cal, err := dev.Calibration(ads111x.PGA512)
	if err != nil {
		t.Fatal(err)
	}
	if cal.Factor() >= 0 {
		t.Fatalf("Factor()=%g expected an inverting factor", cal.Factor())
	}
	r, err := dev.Sense()
	if err != nil {
		t.Fatal(err)
	}
	if r.ADC.Raw != -4096 || r.ADC.Voltage >= 0 {
		t.Errorf("ADC=%s expected -0.064V (-4096)", r.ADC)
	}
	if r.Value <= 0 {
		t.Errorf("negative input read %s expected a positive current", r)
	}
	if s := r.String(); s != "1.2754A" {
		t.Errorf("String()=%q", s)
	}
}

func TestNewI2CErrors(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	if _, err := NewI2C(pb, Unit{Name: "broken"}, nil); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}

	ops := eepromOps(Vmeter)
	ops[2].R = append([]byte(nil), ops[2].R...)
	ops[2].R[1] ^= 0x80
	pb = &i2ctest.Playback{Ops: ops, DontPanic: true}
	if _, err := NewI2C(pb, Vmeter, nil); !errors.Is(err, errChecksum) {
		t.Errorf("expected checksum error got %v", err)
	}
}

func TestVmeterGain(t *testing.T) {
	ops := append(eepromOps(Vmeter),
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x01, 0x04, 0x83}},
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x01, 0x0a, 0x83}},
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x00}, R: []byte{0x40, 0x00}},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, Vmeter, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Calibration(ads111x.Gain(6)); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}
	if err := dev.SetGain(ads111x.Gain(7)); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument got %v", err)
	}
	if err := dev.SetGain(ads111x.PGA256); err != nil {
		t.Fatal(err)
	}
	// PGA256 has no actual code stored, so readings aren't corrected.
	r, err := dev.Sense()
	if err != nil {
		t.Fatal(err)
	}
	if expected := r.ADC.Voltage / Vmeter.Scale; r.Value != expected {
		t.Errorf("Value=%g expected %g", r.Value, expected)
	}
	if v := r.Potential(); v < 8040*physic.MilliVolt || v > 8041*physic.MilliVolt {
		t.Errorf("Potential()=%s expected about 8.0407V", v)
	}
}

func TestSenseContinuous(t *testing.T) {
	ops := append(eepromOps(Vmeter),
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x01, 0x89, 0xe3}},
		// Switch to continuous.
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x01, 0x08, 0xe3}},
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x00}, R: []byte{0x00, 0x00}},
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x00}, R: []byte{0xc0, 0x00}},
		// Halt returns to single-shot.
		i2ctest.IO{Addr: Vmeter.Address, W: []byte{0x01, 0x89, 0xe3}},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()
	record := &i2ctest.Record{Bus: pb}
	dev, err := NewI2C(record, Vmeter, &singleShot)
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
	if r := <-ch; r.Value != 0 {
		t.Errorf("first reading %s expected 0", r)
	}
	r := <-ch
	if expected := r.ADC.Voltage / Vmeter.Scale * (5094.0 / 5073.0); r.Value != expected {
		t.Errorf("Value=%g expected %g", r.Value, expected)
	}
	if r.Value >= 0 {
		t.Errorf("negative code gave %s", r)
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	if cfg := dev.ADC().Config(); cfg.Continuous() {
		t.Error("Halt() did not leave continuous mode")
	}
	t.Logf("record.ops=%#v", record.Ops)
}
