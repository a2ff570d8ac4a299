// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages: packing
// enumerated settings into fixed width registers, sign extension of raw
// samples, 16 bit register access and the error values shared by the
// drivers.
package common
