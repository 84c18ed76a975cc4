package catalog

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
)

const earthRadiusKM = 6371.0088

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point returns the location as a lon/lat point.
func (l Location) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{l.Longitude, l.Latitude})
}

// DistanceKM is the great-circle distance between two lon/lat points.
func DistanceKM(a, b *geom.Point) float64 {
	lat1, lat2 := radians(a.Y()), radians(b.Y())
	dLat := lat2 - lat1
	dLon := radians(b.X() - a.X())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// SortByDistance orders facilities nearest first. Facilities without a location
// keep their relative order after every located one.
func SortByDistance(facilities []Facility, origin *geom.Point) {
	distance := func(f Facility) float64 {
		if f.Location == nil {
			return math.Inf(1)
		}
		return DistanceKM(origin, f.Location.Point())
	}
	sort.SliceStable(facilities, func(i, j int) bool {
		return distance(facilities[i]) < distance(facilities[j])
	})
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
