package weatherxm

import (
	"context"
	"fmt"
	"net/url"
	"time"

	commonhttp "crop-claims/internal/common/http"
)

const DefaultBaseURL = "https://pro.weatherxm.com"

// Station is one entry of the station discovery response.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	CellIndex string  `json:"cellIndex,omitempty"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Observation is the reading block of the latest-observation response.
// Pointers distinguish absent fields from zero readings.
type Observation struct {
	Timestamp                string   `json:"timestamp"`
	Temperature              *float64 `json:"temperature"`
	Humidity                 *float64 `json:"humidity"`
	WindSpeed                *float64 `json:"wind_speed"`
	PrecipitationAccumulated *float64 `json:"precipitation_accumulated"`
	PrecipitationRate        *float64 `json:"precipitation_rate,omitempty"`
}

type LatestReading struct {
	Observation *Observation `json:"observation"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *commonhttp.Client
}

func NewClient(apiKey, baseURL string, httpClient *commonhttp.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = commonhttp.NewClient(30 * time.Second)
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpClient,
	}
}

// StationsNear lists stations within radiusMeters, in provider order.
func (c *Client) StationsNear(ctx context.Context, lat, lon float64, radiusMeters int) ([]Station, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%v", lat))
	q.Set("lon", fmt.Sprintf("%v", lon))
	q.Set("radius", fmt.Sprintf("%d", radiusMeters))

	var stations []Station
	endpoint := fmt.Sprintf("%s/api/v1/stations/near?%s", c.baseURL, q.Encode())
	if err := c.http.GetJSON(ctx, endpoint, c.headers(), &stations); err != nil {
		return nil, fmt.Errorf("stations near: %w", err)
	}
	return stations, nil
}

// LatestReading fetches the most recent observation of a station.
func (c *Client) LatestReading(ctx context.Context, stationID string) (*LatestReading, error) {
	var reading LatestReading
	endpoint := fmt.Sprintf("%s/api/v1/stations/%s/latest", c.baseURL, url.PathEscape(stationID))
	if err := c.http.GetJSON(ctx, endpoint, c.headers(), &reading); err != nil {
		return nil, fmt.Errorf("latest reading for %s: %w", stationID, err)
	}
	return &reading, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-API-KEY": c.apiKey}
}
