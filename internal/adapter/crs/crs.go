// Package crs resolves coordinate reference system codes.
package crs

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"go.ngs.io/raster-pyramid/internal/domain"
)

// Resolver maps an authority code string to a CRS.
type Resolver interface {
	Resolve(code string) (domain.CRS, error)
	// ResolveSRID maps a database SRID to a CRS.
	ResolveSRID(srid int) (domain.CRS, error)
}

// Registry is a caching Resolver for "AUTHORITY:CODE" strings.
// It is safe for concurrent use.
type Registry struct {
	known map[string]struct{} // Accepted authorities, upper case.
	cache *xsync.MapOf[string, domain.CRS]
}

// NewRegistry creates a registry accepting the given authorities.
// With no arguments only EPSG codes are accepted.
func NewRegistry(authorities ...string) *Registry {
	if len(authorities) == 0 {
		authorities = []string{"EPSG"}
	}
	known := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		known[strings.ToUpper(a)] = struct{}{}
	}
	return &Registry{
		known: known,
		cache: xsync.NewMapOf[string, domain.CRS](),
	}
}

// Resolve parses codes such as "EPSG:4326", "epsg:3857" or
// "urn:ogc:def:crs:EPSG::4326".
func (r *Registry) Resolve(code string) (domain.CRS, error) {
	key := strings.ToUpper(strings.TrimSpace(code))
	if c, ok := r.cache.Load(key); ok {
		return c, nil
	}

	authority, number, err := splitCode(key)
	if err != nil {
		return domain.CRS{}, errors.Annotatef(err, "resolve CRS %q", code)
	}
	if _, ok := r.known[authority]; !ok {
		return domain.CRS{}, errors.NotSupportedf("CRS authority %q", authority)
	}

	c := domain.CRS{
		Code:      authority + ":" + strconv.Itoa(number),
		Authority: authority,
		SRID:      number,
	}
	c, _ = r.cache.LoadOrStore(key, c)
	return c, nil
}

// ResolveSRID resolves a database SRID, which is assumed to be an EPSG code.
func (r *Registry) ResolveSRID(srid int) (domain.CRS, error) {
	if srid <= 0 {
		return domain.CRS{}, errors.NotValidf("SRID %d", srid)
	}
	return r.Resolve("EPSG:" + strconv.Itoa(srid))
}

func splitCode(code string) (string, int, error) {
	// urn:ogc:def:crs:EPSG::4326 and urn:ogc:def:crs:EPSG:6.6:4326.
	if strings.HasPrefix(code, "URN:OGC:DEF:CRS:") {
		parts := strings.Split(strings.TrimPrefix(code, "URN:OGC:DEF:CRS:"), ":")
		if len(parts) < 2 {
			return "", 0, errors.NotValidf("CRS URN %q", code)
		}
		code = parts[0] + ":" + parts[len(parts)-1]
	}

	authority, num, ok := strings.Cut(code, ":")
	if !ok || authority == "" {
		return "", 0, errors.NotValidf("CRS code %q", code)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return "", 0, errors.NotValidf("CRS code number %q", num)
	}
	return authority, n, nil
}
