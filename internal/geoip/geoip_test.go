package geoip

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/oschwald/geoip2-golang"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

type fakeReader struct {
	records map[string]*geoip2.City
	closed  bool
}

func (f *fakeReader) City(ip net.IP) (*geoip2.City, error) {
	if rec, ok := f.records[ip.String()]; ok {
		return rec, nil
	}
	return &geoip2.City{}, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func london() *geoip2.City {
	rec := &geoip2.City{}
	rec.Location.Latitude = 51.5074
	rec.Location.Longitude = -0.1278
	rec.Location.AccuracyRadius = 20
	rec.Country.IsoCode = "GB"
	return rec
}

func TestLocate(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{records: map[string]*geoip2.City{"81.2.69.142": london()}}
	r := &Resolver{reader: reader}

	t.Run("KnownAddress", func(t *testing.T) {
		loc, err := r.Locate(ctx, "81.2.69.142")
		if err != nil {
			t.Fatalf("Locate failed: %v", err)
		}
		if loc == nil || loc.Lat != 51.5074 || loc.Lon != -0.1278 || loc.Country != "GB" {
			t.Errorf("expected London, got %+v", loc)
		}
	})

	t.Run("UnknownAddress", func(t *testing.T) {
		loc, err := r.Locate(ctx, "10.0.0.1")
		if err != nil || loc != nil {
			t.Errorf("expected nil, nil, got %+v, %v", loc, err)
		}
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		_, err := r.Locate(ctx, "not-an-ip")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := r.Locate(cctx, "81.2.69.142"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		if err := r.Close(); err != nil || !reader.closed {
			t.Errorf("expected reader closed, got %v", err)
		}
	})
}

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("expected error for missing database")
	}
}
