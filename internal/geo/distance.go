package geo

import "math"

const earthRadiusMeters = 6_371_000

// Point is a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Haversine returns the great-circle distance in meters between two lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// DistanceTo returns the great-circle distance in meters from p to other.
func (p Point) DistanceTo(other Point) float64 {
	return Haversine(p.Lat, p.Lon, other.Lat, other.Lon)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
