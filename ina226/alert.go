// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"fmt"
	"math"

	"github.com/GermanBionicSystems/meter/common"
)

// Alert is the function driving the ALERT pin.
type Alert uint8

const (
	// AlertUnknown is reported when the mask register couldn't be read.
	AlertUnknown Alert = iota
	AlertNone
	AlertShuntOver
	AlertShuntUnder
	AlertBusOver
	AlertBusUnder
	AlertPowerOver
	AlertConversionReady
)

func (a Alert) String() string {
	switch a {
	case AlertUnknown:
		return "Unknown"
	case AlertNone:
		return "None"
	case AlertShuntOver:
		return "ShuntOver"
	case AlertShuntUnder:
		return "ShuntUnder"
	case AlertBusOver:
		return "BusOver"
	case AlertBusUnder:
		return "BusUnder"
	case AlertPowerOver:
		return "PowerOver"
	case AlertConversionReady:
		return "ConversionReady"
	}
	return fmt.Sprintf("Alert(%d)", uint8(a))
}

// Mask/Enable register layout.
var (
	flagLatch           = common.Flag(0)
	flagActiveHigh      = common.Flag(1)
	flagOverflow        = common.Flag(2)
	flagConversionReady = common.Flag(3)
	flagAlertFunction   = common.Flag(4)
)

// alertFunctions lists the alert function bits in priority order.
var alertFunctions = []struct {
	field common.Field
	alert Alert
}{
	{common.Flag(15), AlertShuntOver},
	{common.Flag(14), AlertShuntUnder},
	{common.Flag(13), AlertBusOver},
	{common.Flag(12), AlertBusUnder},
	{common.Flag(11), AlertPowerOver},
	{common.Flag(10), AlertConversionReady},
}

// DecodeAlert returns the alert function selected in a Mask/Enable register
// value. If several function bits are set, the one the device honors wins:
// ShuntOver, ShuntUnder, BusOver, BusUnder, PowerOver, then ConversionReady.
func DecodeAlert(mask uint16) Alert {
	for _, f := range alertFunctions {
		if f.field.Get(mask) != 0 {
			return f.alert
		}
	}
	return AlertNone
}

// AlertMask returns the Mask/Enable register value selecting alert a.
// AlertNone disables the ALERT pin.
func AlertMask(a Alert, latch, activeHigh bool) (uint16, error) {
	fv := []common.FieldValue{
		{Field: flagLatch, Value: common.Bool(latch)},
		{Field: flagActiveHigh, Value: common.Bool(activeHigh)},
	}
	switch a {
	case AlertNone:
	case AlertUnknown:
		return 0, fmt.Errorf("alert %s: %w", a, common.ErrInvalidArgument)
	default:
		found := false
		for _, f := range alertFunctions {
			if f.alert == a {
				fv = append(fv, common.FieldValue{Field: f.field, Value: 1})
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("alert %s: %w", a, common.ErrInvalidArgument)
		}
	}
	return common.Pack(fv...)
}

// Flags holds the status bits of the Mask/Enable register.
type Flags struct {
	// AlertFunction is set when the selected alert condition occurred.
	AlertFunction bool
	// ConversionReady is set when a conversion completed. Reading the
	// register clears it.
	ConversionReady bool
	// Overflow is set when the current or power computation overflowed.
	Overflow   bool
	ActiveHigh bool
	Latch      bool
}

// DecodeFlags returns the status bits of a Mask/Enable register value.
func DecodeFlags(mask uint16) Flags {
	return Flags{
		AlertFunction:   flagAlertFunction.Get(mask) != 0,
		ConversionReady: flagConversionReady.Get(mask) != 0,
		Overflow:        flagOverflow.Get(mask) != 0,
		ActiveHigh:      flagActiveHigh.Get(mask) != 0,
		Latch:           flagLatch.Get(mask) != 0,
	}
}

// AlertLimitRegister converts an alert limit to the Alert Limit register
// value. The limit is in volts for the shunt and bus alerts and in watts for
// PowerOver, which needs an applied calibration. The conversion ready alert
// has no limit.
func (e *Engine) AlertLimitRegister(a Alert, limit float64) (uint16, error) {
	if math.IsNaN(limit) || math.IsInf(limit, 0) {
		return 0, fmt.Errorf("alert limit %g: %w", limit, common.ErrInvalidArgument)
	}
	switch a {
	case AlertShuntOver, AlertShuntUnder:
		code := math.Round(limit / shuntVoltageLSB)
		if code < math.MinInt16 || code > math.MaxInt16 {
			return 0, fmt.Errorf("shunt alert limit %gV: %w", limit, common.ErrInvalidArgument)
		}
		return uint16(int16(code)), nil
	case AlertBusOver, AlertBusUnder:
		code := math.Round(limit / busVoltageLSB)
		if code < 0 || code > math.MaxInt16 {
			return 0, fmt.Errorf("bus alert limit %gV: %w", limit, common.ErrInvalidArgument)
		}
		return uint16(code), nil
	case AlertPowerOver:
		if !e.calibrated {
			return 0, fmt.Errorf("power alert limit: %w", common.ErrNotConfigured)
		}
		code := math.Round(limit / e.applied.PowerLSB)
		if code < 0 || code > math.MaxUint16 {
			return 0, fmt.Errorf("power alert limit %gW: %w", limit, common.ErrInvalidArgument)
		}
		return uint16(code), nil
	case AlertConversionReady, AlertNone:
		return 0, nil
	}
	return 0, fmt.Errorf("alert %s: %w", a, common.ErrInvalidArgument)
}

// DecodeAlertLimit converts an Alert Limit register value back to volts or
// watts for alert a.
func (e *Engine) DecodeAlertLimit(a Alert, reg uint16) (float64, error) {
	switch a {
	case AlertShuntOver, AlertShuntUnder:
		return DecodeShuntVoltage(int16(reg)), nil
	case AlertBusOver, AlertBusUnder:
		return DecodeBusVoltage(reg), nil
	case AlertPowerOver:
		return e.DecodePower(reg)
	case AlertConversionReady, AlertNone:
		return 0, nil
	}
	return 0, fmt.Errorf("alert %s: %w", a, common.ErrInvalidArgument)
}
