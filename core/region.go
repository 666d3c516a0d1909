package core

import "github.com/signalsfoundry/impact-simulator/model"

// DescribeRegion names the broad geographic zone containing c: coarse
// longitude bands split by latitude, plus the two polar caps.
func DescribeRegion(c model.GeoCoordinate) string {
	lat, lng := c.Lat, c.Lng
	switch {
	case lat >= 60:
		return "Arctic/North"
	case lat <= -60:
		return "Antarctica"
	}

	switch {
	case lng > -180 && lng < -30:
		if lat > 0 {
			return "North Atlantic"
		}
		return "South Atlantic"
	case lng >= -30 && lng < 60:
		switch {
		case lat > 30:
			return "Europe/Mediterranean"
		case lat > 0:
			return "Africa/Middle East"
		}
		return "Southern Africa"
	case lng >= 60 && lng < 150:
		switch {
		case lat > 30:
			return "Central Asia"
		case lat > 0:
			return "Indian Ocean/Southeast Asia"
		}
		return "Indian Ocean"
	default:
		if lat > 0 {
			return "North Pacific Ocean"
		}
		return "South Pacific Ocean"
	}
}
