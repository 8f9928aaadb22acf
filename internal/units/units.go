// Package units provides shared constants and conversions for vessel speeds
// and distances. Reports and the core work in knots and metres.
package units

import "math"

// Unit constants
const (
	Knots = "kn"
	MPS   = "mps"
	KMPH  = "kmph"
	KPH   = "kph"
)

// MetresPerSecondPerKnot is the exact length of one knot in m/s.
const MetresPerSecondPerKnot = 1852.0 / 3600.0

// ValidUnits contains all valid unit values
var ValidUnits = []string{Knots, MPS, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kn, mps, kmph, kph"
}

// KnotsToMPS converts a speed over ground in knots to metres per second.
func KnotsToMPS(kn float64) float64 {
	return kn * MetresPerSecondPerKnot
}

// MPSToKnots converts metres per second to knots.
func MPSToKnots(mps float64) float64 {
	return mps / MetresPerSecondPerKnot
}

// ConvertSpeed converts a speed in knots to the target units.
// Unknown units return knots unchanged.
func ConvertSpeed(speedKn float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return KnotsToMPS(speedKn)
	case KMPH, KPH:
		return KnotsToMPS(speedKn) * 3.6
	default:
		return speedKn
	}
}

// ETAMinutes returns the travel time in minutes to cover distanceM at
// speedKn. ok is false when the speed is too low to give a meaningful
// estimate.
func ETAMinutes(distanceM, speedKn, minSpeedKn float64) (minutes float64, ok bool) {
	if speedKn < minSpeedKn || speedKn <= 0 || math.IsNaN(distanceM) {
		return 0, false
	}
	return distanceM / KnotsToMPS(speedKn) / 60, true
}
