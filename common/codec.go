// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "fmt"

// Field describes a bit field within a 16 bit register. Offset is the bit
// number of the least significant bit of the field.
type Field struct {
	Offset uint
	Width  uint
}

// FieldValue pairs a field with the value to store in it.
type FieldValue struct {
	Field Field
	Value uint16
}

// Mask returns the register mask covering the field.
func (f Field) Mask() uint16 {
	return uint16((uint32(1)<<f.Width)-1) << f.Offset
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint16 {
	return uint16((uint32(1) << f.Width) - 1)
}

// Get extracts the field from reg.
func (f Field) Get(reg uint16) uint16 {
	return (reg & f.Mask()) >> f.Offset
}

// Set returns reg with the field replaced by v. An error is returned if v
// does not fit into the field.
func (f Field) Set(reg, v uint16) (uint16, error) {
	if v > f.Max() {
		return reg, fmt.Errorf("common: value 0x%x exceeds %d bit field at offset %d: %w", v, f.Width, f.Offset, ErrInvalidArgument)
	}
	return (reg &^ f.Mask()) | (v << f.Offset), nil
}

// Flag returns a single bit field at the given offset.
func Flag(offset uint) Field {
	return Field{Offset: offset, Width: 1}
}

// Pack assembles a register from a set of field values. Fields must not
// overlap.
func Pack(values ...FieldValue) (uint16, error) {
	var reg, used uint16
	var err error
	for _, fv := range values {
		if used&fv.Field.Mask() != 0 {
			return 0, fmt.Errorf("common: overlapping field at offset %d: %w", fv.Field.Offset, ErrInvalidArgument)
		}
		used |= fv.Field.Mask()
		if reg, err = fv.Field.Set(reg, fv.Value); err != nil {
			return 0, err
		}
	}
	return reg, nil
}

// Bool converts a flag to a field value.
func Bool(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// SignExtend interprets the low width bits of raw as a two's complement
// number.
func SignExtend(raw uint32, width uint) int32 {
	shift := 32 - width
	return int32(raw<<shift) >> shift
}

// Unsigned returns the low width bits of raw.
func Unsigned(raw uint32, width uint) uint32 {
	if width >= 32 {
		return raw
	}
	return raw & ((1 << width) - 1)
}
