// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "errors"

var (
	// ErrInvalidArgument is returned when a value is outside the enumerated
	// or numeric domain of a setting, or when a derived register value can't
	// be represented.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotConfigured is returned when current or power is decoded before
	// a calibration has been written to the device.
	ErrNotConfigured = errors.New("not configured")
	// ErrUnknown is returned when a status register could not be read.
	ErrUnknown = errors.New("unknown")
	// ErrNotSupported is returned when the device variant lacks the
	// requested feature.
	ErrNotSupported = errors.New("not supported by this variant")
	// ErrTimeout is returned when a conversion didn't complete in time.
	ErrTimeout = errors.New("timeout waiting for conversion")
)
