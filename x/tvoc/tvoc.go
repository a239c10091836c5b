// Package tvoc maps a Sensirion VOC index to total-VOC concentration
// estimates used by building standards.
package tvoc

import (
	"math"

	"sen6x-go/x/mathx"
)

// Scale factors for each reference standard.
const (
	WellFactor    = -996.94 // WELL Building Standard, µg/m³
	ResetFactor   = -878.53 // RESET Air, µg/m³
	EthanolFactor = -381.97 // ethanol equivalent, ppb
)

// indexCeiling is the last index value the transform accepts.
const indexCeiling = 500.9

// Convert applies (ln(501 - v) - 6.24) * k. Index values of 501 and above
// map to 0.
func Convert(v, k float64) float64 {
	if v >= 501 {
		return 0
	}
	return (math.Log(501-mathx.Min(v, indexCeiling)) - 6.24) * k
}

// Well returns the WELL-equivalent TVOC in µg/m³.
func Well(v float64) float64 { return Convert(v, WellFactor) }

// Reset returns the RESET-equivalent TVOC in µg/m³.
func Reset(v float64) float64 { return Convert(v, ResetFactor) }

// Ethanol returns the ethanol-equivalent TVOC in ppb.
func Ethanol(v float64) float64 { return Convert(v, EthanolFactor) }
