// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package meter is a container for the drivers of the measurement units:
// the ADS111x analog to digital converters, the INA226 power monitor and
// the isolated A/V meters built on the ADS1115.
//
// The register level decoding of every chip is usable without hardware,
// through the engines in each package.
package meter
