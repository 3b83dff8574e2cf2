// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0
//

package utils

import (
	"math"
	"os"
)

// ServiceName is the default name of the simulator service
const ServiceName = "lora-simulator"

/**
 * Rounds number to decimals
 */
func RoundToDecimal(value float64, decimals int) float64 {
	intValue := value * math.Pow10(decimals)
	return math.Round(intValue) / math.Pow10(decimals)
}

func GetEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func MwToDbm(mw float64) float64 {
	return 10 * math.Log10(mw)
}

func DbmToMw(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// SumDbm adds powers expressed in dBm in the linear domain
func SumDbm(values ...float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	total := 0.0
	for _, v := range values {
		total += DbmToMw(v)
	}
	return MwToDbm(total)
}

func If[T any](cond bool, vtrue, vfalse T) T {
	if cond {
		return vtrue
	}
	return vfalse
}
