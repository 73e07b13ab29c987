// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package enrich

import (
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"

	"grimm.is/shellwatch/internal/errors"
)

// GeoInfo locates a remote address.
type GeoInfo struct {
	Country string `json:"country,omitempty"`
	ASN     uint   `json:"asn,omitempty"`
	Org     string `json:"org,omitempty"`
}

// GeoIP resolves addresses against a MaxMind database. Country, City and ASN
// editions are accepted; lookups the edition does not support are skipped.
type GeoIP struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens a .mmdb file.
func OpenGeoIP(path string) (*GeoIP, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindNotFound, "GeoIP database not found"), "path", path)
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindMalformed, "failed to open GeoIP database"), "path", path)
	}
	return &GeoIP{reader: r}, nil
}

// Close releases the database. A nil GeoIP is a no-op.
func (g *GeoIP) Close() error {
	if g == nil {
		return nil
	}
	return g.reader.Close()
}

// LookupAddr returns location details for a numeric IPv4 address, or nil
// when nothing is known.
func (g *GeoIP) LookupAddr(addr uint32) *GeoInfo {
	if g == nil {
		return nil
	}
	ip := net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))

	var info GeoInfo
	if c, err := g.reader.Country(ip); err == nil {
		info.Country = c.Country.IsoCode
	}
	if a, err := g.reader.ASN(ip); err == nil {
		info.ASN = a.AutonomousSystemNumber
		info.Org = a.AutonomousSystemOrganization
	}
	if info == (GeoInfo{}) {
		return nil
	}
	return &info
}
