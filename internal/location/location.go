package location

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/phuslu/log"
)

const earthRadius = 6371e3

var errBadCoord = errors.New("Bad coordinate")

type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Time      time.Time `json:"-"`
}

func (s Sample) MarshalObject(e *log.Entry) {
	e.Float64("lat", s.Latitude).Float64("lon", s.Longitude)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Sample) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dphi := (b.Latitude - a.Latitude) * math.Pi / 180
	dlambda := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func Valid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ParseCoord parses a "lat,lng" pair.
func ParseCoord(s string) (Sample, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Sample{}, errBadCoord
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Sample{}, errBadCoord
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Sample{}, errBadCoord
	}
	if !Valid(lat, lon) {
		return Sample{}, errBadCoord
	}
	return Sample{Latitude: lat, Longitude: lon}, nil
}
