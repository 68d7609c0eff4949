package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// WGS84 ellipsoid parameters.
const (
	earthSemiMajorAxis = 6378137.0
	earthFlattening    = 1.0 / 298.257223563
)

// NewCoordinate returns an orb.Point for a latitude, longitude pair.
// orb stores points in longitude, latitude (GeoJSON) order which is
// easy to get backwards so everything in this module goes through
// this constructor.
func NewCoordinate(lat float64, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// DistanceKm returns the distance in kilometers between two coordinates
// computed on the WGS84 ellipsoid using the Vincenty inverse formula.
// Spherical (haversine) approximations drift by up to 0.5% which is
// enough to flip records in and out of sub-kilometer radius filters,
// hence the ellipsoidal model.
func DistanceKm(from orb.Point, to orb.Point) float64 {

	lat1 := from.Lat() * math.Pi / 180.0
	lat2 := to.Lat() * math.Pi / 180.0

	l := (to.Lon() - from.Lon()) * math.Pi / 180.0

	b := earthSemiMajorAxis * (1.0 - earthFlattening)

	u1 := math.Atan((1.0 - earthFlattening) * math.Tan(lat1))
	u2 := math.Atan((1.0 - earthFlattening) * math.Tan(lat2))

	sin_u1 := math.Sin(u1)
	cos_u1 := math.Cos(u1)
	sin_u2 := math.Sin(u2)
	cos_u2 := math.Cos(u2)

	lambda := l

	var sin_sigma, cos_sigma, sigma float64
	var cos2_alpha, cos_2sigma_m float64

	converged := false

	for i := 0; i < 200; i++ {

		sin_lambda := math.Sin(lambda)
		cos_lambda := math.Cos(lambda)

		sin_sigma = math.Sqrt(math.Pow(cos_u2*sin_lambda, 2) +
			math.Pow(cos_u1*sin_u2-sin_u1*cos_u2*cos_lambda, 2))

		if sin_sigma == 0.0 {
			// coincident points
			return 0.0
		}

		cos_sigma = sin_u1*sin_u2 + cos_u1*cos_u2*cos_lambda
		sigma = math.Atan2(sin_sigma, cos_sigma)

		sin_alpha := cos_u1 * cos_u2 * sin_lambda / sin_sigma
		cos2_alpha = 1.0 - sin_alpha*sin_alpha

		if cos2_alpha == 0.0 {
			// equatorial line
			cos_2sigma_m = 0.0
		} else {
			cos_2sigma_m = cos_sigma - 2.0*sin_u1*sin_u2/cos2_alpha
		}

		c := earthFlattening / 16.0 * cos2_alpha * (4.0 + earthFlattening*(4.0-3.0*cos2_alpha))

		lambda_prev := lambda

		lambda = l + (1.0-c)*earthFlattening*sin_alpha*
			(sigma+c*sin_sigma*(cos_2sigma_m+c*cos_sigma*(-1.0+2.0*cos_2sigma_m*cos_2sigma_m)))

		if math.Abs(lambda-lambda_prev) < 1e-12 {
			converged = true
			break
		}
	}

	if !converged {
		// The iteration fails to converge for nearly antipodal points.
		// Nothing this module filters on is 20,000km from its target so
		// a spherical fallback is good enough out there.
		return sphericalDistanceKm(from, to)
	}

	usq := cos2_alpha * (earthSemiMajorAxis*earthSemiMajorAxis - b*b) / (b * b)

	a_coeff := 1.0 + usq/16384.0*(4096.0+usq*(-768.0+usq*(320.0-175.0*usq)))
	b_coeff := usq / 1024.0 * (256.0 + usq*(-128.0+usq*(74.0-47.0*usq)))

	delta_sigma := b_coeff * sin_sigma * (cos_2sigma_m +
		b_coeff/4.0*(cos_sigma*(-1.0+2.0*cos_2sigma_m*cos_2sigma_m)-
			b_coeff/6.0*cos_2sigma_m*(-3.0+4.0*sin_sigma*sin_sigma)*(-3.0+4.0*cos_2sigma_m*cos_2sigma_m)))

	s := b * a_coeff * (sigma - delta_sigma)

	return s / 1000.0
}

func sphericalDistanceKm(from orb.Point, to orb.Point) float64 {

	const r = 6371.0088 // mean Earth radius, km

	lat1 := from.Lat() * math.Pi / 180.0
	lat2 := to.Lat() * math.Pi / 180.0

	dlat := lat2 - lat1
	dlon := (to.Lon() - from.Lon()) * math.Pi / 180.0

	h := math.Pow(math.Sin(dlat/2.0), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2.0), 2)

	return 2.0 * r * math.Asin(math.Sqrt(h))
}
