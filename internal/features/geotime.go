package features

import (
	"math"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// GeoTime holds the geo-time features for one transaction.
type GeoTime struct {
	Score        float64
	DistanceKm   float64
	Insufficient bool
}

// GeoTimeAnalyzer scores how plausible travel between two located events is.
type GeoTimeAnalyzer struct {
	typicalKmh float64
	maxKmh     float64
}

// NewGeoTimeAnalyzer creates an analyzer from feature settings.
func NewGeoTimeAnalyzer(cfg domain.FeatureConfig) *GeoTimeAnalyzer {
	typical, limit := cfg.TypicalTravelSpeedKmh, cfg.MaxPlausibleSpeedKmh
	if typical <= 0 {
		typical = 100
	}
	if limit <= typical {
		limit = typical + 800
	}
	return &GeoTimeAnalyzer{typicalKmh: typical, maxKmh: limit}
}

// Analyze compares the current location against the previous fix.
// A nil previous fix or non-positive elapsed time is insufficient history.
func (g *GeoTimeAnalyzer) Analyze(prev *domain.LocationFix, cur domain.Location, at time.Time) GeoTime {
	if prev == nil {
		return GeoTime{Insufficient: true}
	}

	dist := Haversine(prev.Location, cur)
	elapsed := at.Sub(prev.Timestamp).Hours()
	if elapsed <= 0 {
		return GeoTime{DistanceKm: dist, Insufficient: true}
	}

	return GeoTime{
		Score:      g.Score(dist / elapsed),
		DistanceKm: dist,
	}
}

// Score maps a required speed in km/h to an inconsistency in [0,1).
// Speeds up to the typical travel speed score 0. Above it the score rises
// monotonically and saturates, reaching 1-1/e at the max plausible speed.
func (g *GeoTimeAnalyzer) Score(speedKmh float64) float64 {
	if math.IsNaN(speedKmh) || speedKmh <= g.typicalKmh {
		return 0
	}
	if math.IsInf(speedKmh, 1) {
		return 1
	}
	return 1 - math.Exp(-(speedKmh-g.typicalKmh)/(g.maxKmh-g.typicalKmh))
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b domain.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
