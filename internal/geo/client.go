// Package geo resolves source IPs to geolocation records via an external
// provider. Lookups are best-effort enrichment: every failure mode leaves
// the geolocation absent rather than surfacing an error to the operator.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"github.com/netsentry/netsentry/internal/logging"
	"github.com/netsentry/netsentry/internal/models"
)

// DefaultProviderURL is the free ip-api.com JSON endpoint.
const DefaultProviderURL = "http://ip-api.com/json"

const lookupTimeout = 10 * time.Second

// providerResponse is the ip-api.com wire format.
type providerResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	City        string   `json:"city"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	ISP         string   `json:"isp"`
	Org         string   `json:"org"`
}

// Client queries the provider with an optional cache in front.
type Client struct {
	baseURL string
	http    *http.Client
	cache   Cache
	log     *logging.Logger
}

// NewClient builds a geolocation client. cache may be nil, in which case an
// in-process map cache is used.
func NewClient(baseURL string, cache Cache, log *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultProviderURL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: lookupTimeout},
		cache:   cache,
		log:     log,
	}
}

// Lookup resolves ip to a geolocation record. It returns (nil, nil) when the
// address is empty or a placeholder; private-range addresses resolve locally
// without a provider call.
func (c *Client) Lookup(ctx context.Context, ip string) (*models.Geolocation, error) {
	if ip == "" || ip == "N/A" {
		return nil, nil
	}
	if loc, ok := c.cache.Get(ctx, ip); ok {
		return loc, nil
	}
	if loc := privateRange(ip); loc != nil {
		c.cache.Set(ctx, ip, loc)
		return loc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,city,lat,lon,isp,org", c.baseURL, url.PathEscape(ip)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation lookup for %s: %w", ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation provider returned status %d for %s", resp.StatusCode, ip)
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode geolocation response for %s: %w", ip, err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("geolocation provider rejected %s: %s", ip, pr.Message)
	}

	loc := &models.Geolocation{
		Country:     pr.Country,
		CountryCode: pr.CountryCode,
		City:        pr.City,
		Lat:         pr.Lat,
		Lon:         pr.Lon,
		ISP:         pr.ISP,
		Org:         pr.Org,
	}
	c.cache.Set(ctx, ip, loc)
	c.log.Debug("geolocation resolved", logging.FieldIP, ip, "city", loc.City, "country", loc.Country)
	return loc, nil
}

// privateRange returns a synthetic record for non-routable addresses so the
// UI still has something to show for lab traffic.
func privateRange(ip string) *models.Geolocation {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return &models.Geolocation{
			Country:     "Local",
			CountryCode: "LOCAL",
			City:        "Private Network",
			ISP:         "Local Network",
			Org:         "Private IP Range",
		}
	}
	return nil
}
