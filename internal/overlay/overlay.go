// Package overlay turns an impact result into map geometry: geodesic damage
// rings as GeoJSON and web-mercator positions for 2D map layers.
package overlay

import (
	"errors"
	"fmt"
	"math"
	"sort"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/model"
)

// EarthRadiusKm is the mean radius used for geodesic circles.
const EarthRadiusKm = 6371.0088

// DefaultSegments is the vertex count per ring when the caller passes zero.
const DefaultSegments = 64

// maxMercatorLat is where EPSG:3857 squares off.
const maxMercatorLat = 85.05112878

// Zone names, outermost first.
const (
	ZoneSeismic  = "seismic"
	ZoneLight    = "light"
	ZoneModerate = "moderate"
	ZoneSevere   = "severe"
	ZoneFireball = "fireball"
	ZoneCrater   = "crater"
	GroundZero   = "ground_zero"
)

// ErrInvalidSegments is returned for a ring with fewer than three vertices.
var ErrInvalidSegments = errors.New("invalid ring segment count")

var toMercator = wgs84.EPSG().Transform(4326, 3857)

type zone struct {
	name     string
	radiusKm float64
}

// zonesFor lists the rings outermost first, so a renderer drawing in order
// leaves the small rings on top.
func zonesFor(r model.ImpactResult) []zone {
	return []zone{
		{ZoneSeismic, r.Radii.Seismic},
		{ZoneLight, r.Radii.Light},
		{ZoneModerate, r.Radii.Moderate},
		{ZoneSevere, r.Radii.Severe},
		{ZoneFireball, r.Radii.Fireball},
		{ZoneCrater, r.CraterDiameterMeters / 2 / 1000},
	}
}

// DamageZones builds one polygon feature per damage ring plus the crater,
// followed by a ground-zero point carrying its EPSG:3857 position. Rings with
// a non-positive radius are skipped.
func DamageZones(center model.GeoCoordinate, result model.ImpactResult, segments int) (geom.GeoJSONFeatureCollection, error) {
	if err := core.ValidateGeoCoordinate(center); err != nil {
		return nil, err
	}
	if segments == 0 {
		segments = DefaultSegments
	}
	if segments < 3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSegments, segments)
	}

	var fc geom.GeoJSONFeatureCollection
	for _, z := range zonesFor(result) {
		if !(z.radiusKm > 0) {
			continue
		}
		poly, err := GeodesicCircle(center, z.radiusKm, segments)
		if err != nil {
			return nil, fmt.Errorf("%s ring: %w", z.name, err)
		}
		fc = append(fc, geom.GeoJSONFeature{
			ID:       z.name,
			Geometry: poly.AsGeometry(),
			Properties: map[string]interface{}{
				"zone":      z.name,
				"radius_km": z.radiusKm,
			},
		})
	}

	gz, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: center.Lng, Y: center.Lat}, Type: geom.DimXY})
	if err != nil {
		return nil, fmt.Errorf("ground zero: %w", err)
	}
	mx, my := ToWebMercator(center)
	fc = append(fc, geom.GeoJSONFeature{
		ID:       GroundZero,
		Geometry: gz.AsGeometry(),
		Properties: map[string]interface{}{
			"zone":       GroundZero,
			"region":     core.DescribeRegion(center),
			"megatons":   result.Megatons,
			"mercator_x": mx,
			"mercator_y": my,
		},
	})
	return fc, nil
}

// GeodesicCircle returns the polygon of points radiusKm from center along
// the sphere, wound counter-clockwise as GeoJSON expects. Longitudes are not
// wrapped so a ring crossing the antimeridian stays continuous.
//
// A circle that reaches over a pole is closed along the meridians 180° from
// the center and across the pole, so the polygon covers the polar cap. A
// circle covering both poles becomes the whole globe with the antipodal cap
// cut out as a hole.
func GeodesicCircle(center model.GeoCoordinate, radiusKm float64, segments int) (geom.Polygon, error) {
	phi := center.Lat * math.Pi / 180
	lam := center.Lng * math.Pi / 180
	delta := radiusKm / EarthRadiusKm
	toPole := math.Pi/2 - math.Abs(phi)

	var rings [][]float64
	switch {
	case delta >= math.Pi:
		rings = [][]float64{globeRing(lam + math.Pi)}
	case delta > math.Pi-toPole:
		// Both poles inside: cut out the cap around the antipode.
		antiLam := lam + math.Pi
		hole := circleRing(-phi, antiLam, math.Pi-delta, segments)
		rings = [][]float64{globeRing(antiLam), reverseRing(hole)}
	case delta > toPole:
		rings = [][]float64{polarCapRing(phi, lam, delta, segments)}
	default:
		rings = [][]float64{circleRing(phi, lam, delta, segments)}
	}

	lines := make([]geom.LineString, 0, len(rings))
	for _, coords := range rings {
		ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
		if err != nil {
			return geom.Polygon{}, err
		}
		lines = append(lines, ls)
	}
	return geom.NewPolygon(lines)
}

// destination returns the point at angular distance delta and bearing theta
// from (phi, lam), with the longitude kept within π of lam.
func destination(phi, lam, delta, theta float64) (phi2, lam2 float64) {
	sinPhi, cosPhi := math.Sincos(phi)
	sinDelta, cosDelta := math.Sincos(delta)
	sinPhi2 := sinPhi*cosDelta + cosPhi*sinDelta*math.Cos(theta)
	phi2 = math.Asin(math.Max(-1, math.Min(1, sinPhi2)))
	lam2 = lam + math.Atan2(math.Sin(theta)*sinDelta*cosPhi, cosDelta-sinPhi*sinPhi2)
	return phi2, lam2
}

// circleRing is the closed CCW ring of a circle that contains no pole.
func circleRing(phi, lam, delta float64, segments int) []float64 {
	coords := make([]float64, 0, 2*(segments+1))
	for i := 0; i < segments; i++ {
		// Bearings run clockwise from north; step them backwards.
		theta := 2 * math.Pi * float64(segments-i) / float64(segments)
		phi2, lam2 := destination(phi, lam, delta, theta)
		coords = append(coords, deg(lam2), deg(phi2))
	}
	return append(coords, coords[0], coords[1])
}

// polarCapRing is the closed CCW ring of a circle around (phi, lam) that
// contains the pole on phi's side.
func polarCapRing(phi, lam, delta float64, segments int) []float64 {
	north := phi >= 0
	pole := math.Pi / 2
	// Where the circle crosses the meridian opposite the center.
	edge := math.Pi - phi - delta
	if !north {
		pole = -pole
		edge = -math.Pi - phi + delta
	}

	type vertex struct{ dLam, phi float64 }
	verts := make([]vertex, 0, segments)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		phi2, lam2 := destination(phi, lam, delta, theta)
		d := lam2 - lam
		if math.Abs(d) >= math.Pi-1e-9 {
			continue
		}
		verts = append(verts, vertex{d, phi2})
	}
	// Every meridian crosses a pole-enclosing circle once, so ordering by
	// longitude traces the boundary.
	sort.Slice(verts, func(i, j int) bool { return verts[i].dLam < verts[j].dLam })

	coords := make([]float64, 0, 2*(len(verts)+5))
	coords = append(coords, deg(lam-math.Pi), deg(edge))
	for _, v := range verts {
		coords = append(coords, deg(lam+v.dLam), deg(v.phi))
	}
	coords = append(coords,
		deg(lam+math.Pi), deg(edge),
		deg(lam+math.Pi), deg(pole),
		deg(lam-math.Pi), deg(pole),
		deg(lam-math.Pi), deg(edge),
	)
	if !north {
		// Eastward along the boundary with the cap below is clockwise.
		coords = reverseRing(coords)
	}
	return coords
}

// globeRing is the CCW ring covering every longitude around lam.
func globeRing(lam float64) []float64 {
	w, e := deg(lam-math.Pi), deg(lam+math.Pi)
	return []float64{w, -90, e, -90, e, 90, w, 90, w, -90}
}

func reverseRing(coords []float64) []float64 {
	out := make([]float64, len(coords))
	n := len(coords) / 2
	for i := 0; i < n; i++ {
		out[2*i] = coords[2*(n-1-i)]
		out[2*i+1] = coords[2*(n-1-i)+1]
	}
	return out
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }

// ToWebMercator projects c to EPSG:3857 metres. Latitudes beyond the
// projection's limit are clamped.
func ToWebMercator(c model.GeoCoordinate) (x, y float64) {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, c.Lat))
	x, y, _ = toMercator(c.Lng, lat, 0)
	return x, y
}
