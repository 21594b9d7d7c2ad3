package domain

import (
	"testing"
)

func TestEnvelopeIntersection(t *testing.T) {
	a := NewEnvelope(0, 0, 10, 10, wgs84)

	tests := []struct {
		name string
		b    Envelope
		want Envelope
		ok   bool
	}{
		{"overlap", NewEnvelope(5, 5, 15, 15, wgs84), NewEnvelope(5, 5, 10, 10, wgs84), true},
		{"contained", NewEnvelope(2, 3, 4, 5, wgs84), NewEnvelope(2, 3, 4, 5, wgs84), true},
		{"disjoint", NewEnvelope(20, 20, 30, 30, wgs84), Envelope{}, false},
		{"shared edge", NewEnvelope(10, 0, 20, 10, wgs84), Envelope{}, false},
	}
	for _, tt := range tests {
		got, ok := a.Intersection(tt.b)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v, got %v", tt.name, tt.ok, ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestNewEnvelope_NormalizesCorners(t *testing.T) {
	e := NewEnvelope(10, 8, 2, 1, wgs84)
	if e.MinX() != 2 || e.MinY() != 1 || e.MaxX() != 10 || e.MaxY() != 8 {
		t.Errorf("corners not normalized: %s", e)
	}
}

func TestParseBBox(t *testing.T) {
	env, err := ParseBBox("139.5, 35, 140.25,36", wgs84)
	if err != nil {
		t.Fatalf("ParseBBox: %v", err)
	}
	if env.Width() != 0.75 || env.Height() != 1 {
		t.Errorf("unexpected size %gx%g", env.Width(), env.Height())
	}

	for _, bad := range []string{"1,2,3", "a,b,c,d", "0,0,0,5"} {
		if _, err := ParseBBox(bad, wgs84); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
