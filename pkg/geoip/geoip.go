// Package geoip resolves IP addresses to coarse locations using a local
// MaxMind GeoLite2 database.
package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver wraps a GeoLite2 City database. Lookups never fail: addresses that
// cannot be resolved (private ranges, loopback, missing database) report
// ok=false and the caller degrades to its Unknown sentinel.
type Resolver struct {
	db *geoip2.Reader
}

// Open loads the database at path. An empty path yields a resolver that
// reports every lookup as unresolved, which keeps local development working
// without a database file.
func Open(path string) (*Resolver, error) {
	if path == "" {
		return &Resolver{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{db: db}, nil
}

func (r *Resolver) Lookup(ip string) (country, city string, ok bool) {
	if r.db == nil {
		return "", "", false
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return "", "", false
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return "", "", false
	}

	country = record.Country.Names["en"]
	city = record.City.Names["en"]
	if country == "" && city == "" {
		return "", "", false
	}
	return country, city, true
}

// Enabled reports whether a database file is loaded.
func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

func (r *Resolver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
