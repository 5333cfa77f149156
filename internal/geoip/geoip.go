// Package geoip resolves client IP addresses to coordinates from a MaxMind
// city database.
package geoip

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Resolver implements features.Locator.
type Resolver struct {
	reader cityReader
}

// Open loads the city database at path.
func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open city database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Locate returns the coordinates recorded for ip, or nil when the database
// has no position for it.
func (r *Resolver) Locate(ctx context.Context, ipAddress string) (*domain.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid ip address %q", domain.ErrInvalidInput, ipAddress)
	}

	record, err := r.reader.City(ip)
	if err != nil {
		return nil, fmt.Errorf("city lookup failed: %w", err)
	}
	if record.Location.AccuracyRadius == 0 && record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, nil
	}
	return &domain.Location{
		Lat:     record.Location.Latitude,
		Lon:     record.Location.Longitude,
		Country: record.Country.IsoCode,
	}, nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	return r.reader.Close()
}
