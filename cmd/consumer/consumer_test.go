package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/campus-dispatch/internal/models"
)

type fakeUpdater struct {
	geoFails  int
	hsetFails int
	geoCalls  int
	hsetCalls int
	geoKey    string
	hsetKey   string
	hsetVals  map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	f.geoKey = key
	if f.geoFails > 0 {
		f.geoFails--
		return errors.New("geo transient")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hsetCalls++
	f.hsetKey = key
	f.hsetVals = values
	if f.hsetFails > 0 {
		f.hsetFails--
		return errors.New("hset transient")
	}
	return nil
}

func sampleFixture() *models.LocationSample {
	return &models.LocationSample{
		OrderID:    "o1",
		ReporterID: "bob",
		Lat:        39.99,
		Lon:        116.31,
		Accuracy:   4,
		RecordedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpdateRedisHappyPath(t *testing.T) {
	f := &fakeUpdater{}
	if err := updateRedisWithRetry(context.Background(), f, sampleFixture(), 3, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.geoCalls != 1 || f.hsetCalls != 1 {
		t.Fatalf("expected single calls, got geo=%d hset=%d", f.geoCalls, f.hsetCalls)
	}
	if f.geoKey != "orders_geo" {
		t.Fatalf("unexpected geo key %q", f.geoKey)
	}
	if f.hsetKey != "order:loc:o1" {
		t.Fatalf("unexpected hash key %q", f.hsetKey)
	}
	if f.hsetVals["reporter"] != "bob" {
		t.Fatalf("unexpected reporter %v", f.hsetVals["reporter"])
	}
	if f.hsetVals["recorded_at"] != "2026-08-01T12:00:00Z" {
		t.Fatalf("unexpected recorded_at %v", f.hsetVals["recorded_at"])
	}
}

func TestUpdateRedisRetriesTransientFailures(t *testing.T) {
	f := &fakeUpdater{geoFails: 2}
	if err := updateRedisWithRetry(context.Background(), f, sampleFixture(), 3, time.Millisecond); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 geo attempts, got %d", f.geoCalls)
	}

	f = &fakeUpdater{hsetFails: 1}
	if err := updateRedisWithRetry(context.Background(), f, sampleFixture(), 3, time.Millisecond); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if f.hsetCalls != 2 {
		t.Fatalf("expected 2 hset attempts, got %d", f.hsetCalls)
	}
}

func TestUpdateRedisGivesUpAfterAttempts(t *testing.T) {
	f := &fakeUpdater{geoFails: 10}
	err := updateRedisWithRetry(context.Background(), f, sampleFixture(), 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.geoCalls)
	}
}
