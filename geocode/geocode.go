// Package geocode resolves free-text addresses to coordinates.
package geocode

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-media-filter/geo"
	"github.com/tidwall/gjson"
)

// DefaultNominatimEndpoint is the public OSM Nominatim search API.
const DefaultNominatimEndpoint = "https://nominatim.openstreetmap.org/search"

// DefaultUserAgent is sent with every Nominatim request. The public
// Nominatim instance rejects requests without one.
const DefaultUserAgent = "sfomuseum/go-media-filter"

// Geocoder resolves an address to a coordinate. A lookup that fails for
// any reason (no match, network error) reports ok=false rather than an
// error; callers decide whether absence is fatal. One blocking call per
// Geocode, no retries, no caching.
type Geocoder interface {
	Geocode(context.Context, string) (orb.Point, bool)
}

// Nominatim is a Geocoder backed by a Nominatim search endpoint.
type Nominatim struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

func NewNominatim() *Nominatim {

	n := &Nominatim{
		Endpoint:  DefaultNominatimEndpoint,
		UserAgent: DefaultUserAgent,
		Client:    http.DefaultClient,
	}

	return n
}

// Geocode performs a single search request and returns the first
// result's coordinate.
func (n *Nominatim) Geocode(ctx context.Context, address string) (orb.Point, bool) {

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req_uri := n.Endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", req_uri, nil)

	if err != nil {
		slog.Warn("Failed to create geocoding request", "address", address, "error", err)
		return orb.Point{}, false
	}

	req.Header.Set("User-Agent", n.UserAgent)

	rsp, err := n.Client.Do(req)

	if err != nil {
		slog.Warn("Geocoding request failed", "address", address, "error", err)
		return orb.Point{}, false
	}

	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		slog.Warn("Geocoding request failed", "address", address, "status", rsp.StatusCode)
		return orb.Point{}, false
	}

	body, err := io.ReadAll(rsp.Body)

	if err != nil {
		slog.Warn("Failed to read geocoding response", "address", address, "error", err)
		return orb.Point{}, false
	}

	lat_rsp := gjson.GetBytes(body, "0.lat")
	lon_rsp := gjson.GetBytes(body, "0.lon")

	if !lat_rsp.Exists() || !lon_rsp.Exists() {
		return orb.Point{}, false
	}

	return geo.NewCoordinate(lat_rsp.Float(), lon_rsp.Float()), true
}
