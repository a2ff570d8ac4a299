// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

// XOR8 returns the exclusive or of every byte in the slice. It protects the
// calibration blocks stored in the EEPROM of the A/V meter units.
func XOR8(bytes []byte) byte {
	var sum byte
	for _, val := range bytes {
		sum ^= val
	}
	return sum
}
