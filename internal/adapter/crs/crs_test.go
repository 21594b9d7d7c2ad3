package crs

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"
)

func TestResolve(t *testing.T) {
	c := qt.New(t)
	r := NewRegistry()

	for _, code := range []string{"EPSG:4326", "epsg:4326", " EPSG:4326 ", "urn:ogc:def:crs:EPSG::4326", "urn:ogc:def:crs:EPSG:6.6:4326"} {
		got, err := r.Resolve(code)
		c.Assert(err, qt.IsNil, qt.Commentf("code %q", code))
		c.Assert(got.Code, qt.Equals, "EPSG:4326")
		c.Assert(got.SRID, qt.Equals, 4326)
		c.Assert(got.Authority, qt.Equals, "EPSG")
	}
}

func TestResolveRejectsBadCodes(t *testing.T) {
	c := qt.New(t)
	r := NewRegistry()

	for _, code := range []string{"", "4326", "EPSG:", "EPSG:abc", "EPSG:-1"} {
		_, err := r.Resolve(code)
		c.Assert(err, qt.Not(qt.IsNil), qt.Commentf("code %q", code))
	}

	_, err := r.Resolve("CRS:84")
	c.Assert(errors.Is(err, errors.NotSupported), qt.IsTrue)
}

func TestResolveSRID(t *testing.T) {
	c := qt.New(t)
	r := NewRegistry()

	got, err := r.ResolveSRID(3857)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Code, qt.Equals, "EPSG:3857")

	_, err = r.ResolveSRID(0)
	c.Assert(err, qt.Not(qt.IsNil))
}
