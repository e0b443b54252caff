// Package contextauth implements device/location context extraction,
// classification, and self-service management for context-based
// authentication.
package contextauth

import (
	"fmt"
	"strings"

	"github.com/mssola/user_agent"
)

// Unknown is the sentinel for any attribute that could not be resolved.
// It is a first-class value: two Unknowns compare equal, never as a mismatch.
const Unknown = "Unknown"

// Descriptor is the normalized fingerprint of a request's origin.
type Descriptor struct {
	IP         string `json:"ip"`
	Country    string `json:"country"`
	City       string `json:"city"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	Platform   string `json:"platform"`
	Device     string `json:"device"`
	DeviceType string `json:"device_type"`
}

// GeoResolver resolves an IP address to a location. Implementations return
// ok=false when the address cannot be resolved (private range, missing
// database); they must not treat that as an error.
type GeoResolver interface {
	Lookup(ip string) (country, city string, ok bool)
}

// Extractor derives Descriptors from raw request attributes.
type Extractor struct {
	geo GeoResolver
}

func NewExtractor(geo GeoResolver) *Extractor {
	return &Extractor{geo: geo}
}

// Extract never fails: every attribute that cannot be determined degrades to
// the Unknown sentinel.
func (e *Extractor) Extract(ip, userAgent string) Descriptor {
	d := Descriptor{
		IP:         ip,
		Country:    Unknown,
		City:       Unknown,
		Browser:    Unknown,
		OS:         Unknown,
		Platform:   Unknown,
		Device:     Unknown,
		DeviceType: Unknown,
	}
	if strings.TrimSpace(ip) == "" {
		d.IP = Unknown
	}

	if e.geo != nil {
		if country, city, ok := e.geo.Lookup(ip); ok {
			if country != "" {
				d.Country = country
			}
			if city != "" {
				d.City = city
			}
		}
	}

	if strings.TrimSpace(userAgent) == "" {
		return d
	}

	ua := user_agent.New(userAgent)

	if name, version := ua.Browser(); name != "" {
		if version != "" {
			d.Browser = fmt.Sprintf("%s %s", name, version)
		} else {
			d.Browser = name
		}
	}
	if os := ua.OSInfo().Name; os != "" {
		d.OS = os
	}
	if platform := ua.Platform(); platform != "" {
		d.Platform = platform
	}
	if model := ua.Model(); model != "" {
		d.Device = model
	}

	d.DeviceType = classifyDeviceType(ua, userAgent)

	return d
}

// classifyDeviceType maps user-agent flags onto the closed set
// {Mobile, Desktop, Tablet, Unknown}; first match wins in that order.
func classifyDeviceType(ua *user_agent.UserAgent, raw string) string {
	lower := strings.ToLower(raw)
	isTablet := strings.Contains(lower, "tablet") || strings.Contains(lower, "ipad")

	switch {
	case ua.Mobile():
		return "Mobile"
	case !ua.Bot() && !isTablet && ua.OS() != "":
		return "Desktop"
	case isTablet:
		return "Tablet"
	default:
		return Unknown
	}
}
