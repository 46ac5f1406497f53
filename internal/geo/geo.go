// Package geo holds coordinates plus great-circle distance and travel-time estimates.
package geo

import (
	"encoding/json"
	"errors"
	"math"
)

const (
	earthRadiusKm = 6371.0
	// Average urban two-wheeler speed, 30 km/h.
	avgSpeedMPS = 8.33333
)

// Point is a WGS84 coordinate. JSON accepts {latitude, longitude}, {lat, lon} or
// {coordinates: [lon, lat]} with or without a GeoJSON type; it is written as GeoJSON.
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lon == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

type geoJSON struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSON{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
		Latitude    *float64  `json:"latitude"`
		Longitude   *float64  `json:"longitude"`
		Lat         *float64  `json:"lat"`
		Lon         *float64  `json:"lon"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch {
	case raw.Coordinates != nil:
		if len(raw.Coordinates) != 2 {
			return errors.New("geo: a point needs two coordinates")
		}
		p.Lon, p.Lat = raw.Coordinates[0], raw.Coordinates[1]
	case raw.Latitude != nil && raw.Longitude != nil:
		p.Lat, p.Lon = *raw.Latitude, *raw.Longitude
	case raw.Lat != nil && raw.Lon != nil:
		p.Lat, p.Lon = *raw.Lat, *raw.Lon
	default:
		return errors.New("geo: unrecognised point shape")
	}
	return nil
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c * 1000
}

// ETA converts meters to whole minutes at the average speed, never less than one.
func ETA(meters float64) int {
	minutes := int(meters / avgSpeedMPS / 60)
	if minutes < 1 {
		return 1
	}
	return minutes
}

// EstimateMinutes is ETA(Distance(from, to)), or 0 when either point is unusable.
func EstimateMinutes(from, to Point) int {
	if !from.Valid() || !to.Valid() {
		return 0
	}
	return ETA(Distance(from, to))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
