package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/impact-simulator/model"
)

var (
	// ErrInvalidCoordinate is returned for latitudes or longitudes outside
	// their valid range, non-finite values, and points with no direction.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidRadius is returned for a non-positive or non-finite sphere
	// radius.
	ErrInvalidRadius = errors.New("invalid sphere radius")
)

// poleEpsilon is the relative distance from the polar axis below which
// longitude is undefined and reported as 0.
const poleEpsilon = 1e-12

// ValidateGeoCoordinate checks that c lies within [-90, 90] x [-180, 180].
// Values are never clamped.
func ValidateGeoCoordinate(c model.GeoCoordinate) error {
	if !isFinite(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if !isFinite(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

func validateRadius(r float64) error {
	if !isFinite(r) || r <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, r)
	}
	return nil
}

// ToSpherePoint projects a surface coordinate onto a sphere of radius r.
func ToSpherePoint(c model.GeoCoordinate, r float64) (SpherePoint, error) {
	if err := validateRadius(r); err != nil {
		return SpherePoint{}, err
	}
	if err := ValidateGeoCoordinate(c); err != nil {
		return SpherePoint{}, err
	}

	sinPhi, cosPhi := math.Sincos(c.Lat * degToRad)
	sinLam, cosLam := math.Sincos(c.Lng * degToRad)
	return SpherePoint{
		X: r * cosPhi * cosLam,
		Y: r * sinPhi,
		Z: -r * cosPhi * sinLam,
	}, nil
}

// ToGeoCoordinate is the inverse of ToSpherePoint. The point is projected
// radially, so positions slightly off the surface still map to the location
// beneath them. On the polar axis longitude is reported as 0.
func ToGeoCoordinate(p SpherePoint, r float64) (model.GeoCoordinate, error) {
	if err := validateRadius(r); err != nil {
		return model.GeoCoordinate{}, err
	}
	if !isFinite(p.X) || !isFinite(p.Y) || !isFinite(p.Z) {
		return model.GeoCoordinate{}, fmt.Errorf("%w: non-finite point %+v", ErrInvalidCoordinate, p)
	}
	n := p.Norm()
	if n == 0 {
		return model.GeoCoordinate{}, fmt.Errorf("%w: point at sphere centre", ErrInvalidCoordinate)
	}

	equatorial := math.Hypot(p.X, p.Z)
	lat := math.Atan2(p.Y, equatorial) * radToDeg
	lng := 0.0
	if equatorial > poleEpsilon*n {
		lng = math.Atan2(-p.Z, p.X) * radToDeg
	}
	return model.GeoCoordinate{Lat: lat, Lng: WrapLongitude(lng)}, nil
}

// Mapper binds the projection to a sphere radius and a fixed longitude
// offset that aligns the map texture with the geometry. Every conversion
// through a Mapper applies the same offset in both directions.
type Mapper struct {
	Radius             float64
	LongitudeOffsetDeg float64
}

// NewMapper returns a Mapper for the given radius and texture offset.
func NewMapper(radius, longitudeOffsetDeg float64) (Mapper, error) {
	if err := validateRadius(radius); err != nil {
		return Mapper{}, err
	}
	if !isFinite(longitudeOffsetDeg) {
		return Mapper{}, fmt.Errorf("%w: longitude offset %v", ErrInvalidCoordinate, longitudeOffsetDeg)
	}
	return Mapper{Radius: radius, LongitudeOffsetDeg: longitudeOffsetDeg}, nil
}

// Project maps a geographic coordinate into the unrotated sphere frame.
func (m Mapper) Project(c model.GeoCoordinate) (SpherePoint, error) {
	if err := ValidateGeoCoordinate(c); err != nil {
		return SpherePoint{}, err
	}
	shifted := model.GeoCoordinate{Lat: c.Lat, Lng: WrapLongitude(c.Lng + m.LongitudeOffsetDeg)}
	return ToSpherePoint(shifted, m.Radius)
}

// Unproject maps a point in the unrotated sphere frame back to geography.
func (m Mapper) Unproject(p SpherePoint) (model.GeoCoordinate, error) {
	g, err := ToGeoCoordinate(p, m.Radius)
	if err != nil {
		return model.GeoCoordinate{}, err
	}
	g.Lng = WrapLongitude(g.Lng - m.LongitudeOffsetDeg)
	return g, nil
}

// WorldPosition returns where c sits once the planet has turned by angle
// radians.
func (m Mapper) WorldPosition(c model.GeoCoordinate, angle float64) (SpherePoint, error) {
	p, err := m.Project(c)
	if err != nil {
		return SpherePoint{}, err
	}
	return p.RotateAboutPolarAxis(angle), nil
}

// GeoAt resolves a world-frame point to the surface location beneath it,
// given the planet rotation angle the point should be read against.
func (m Mapper) GeoAt(p SpherePoint, angle float64) (model.GeoCoordinate, error) {
	return m.Unproject(p.RotateAboutPolarAxis(-angle))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
