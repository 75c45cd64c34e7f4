package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/models"
)

// GeoLocator resolves a request IP to a coarse location. Implementations are
// best-effort: any failure returns nil.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) *models.GeoLocation
}

type ipAPILocator struct {
	client  *http.Client
	baseURL string
}

// NewGeoLocator returns a locator backed by the ip-api.com JSON endpoint
func NewGeoLocator() GeoLocator {
	return &ipAPILocator{
		client:  &http.Client{Timeout: 3 * time.Second},
		baseURL: "http://ip-api.com",
	}
}

func (g *ipAPILocator) Locate(ctx context.Context, ip string) *models.GeoLocation {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/json/%s", g.baseURL, ip), nil)
	if err != nil {
		return nil
	}
	resp, err := g.client.Do(req)
	if err != nil {
		zap.S().Debugw("geo lookup failed", "ip", ip, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var body struct {
		Status     string  `json:"status"`
		Country    string  `json:"country"`
		RegionName string  `json:"regionName"`
		City       string  `json:"city"`
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "success" {
		return nil
	}
	return &models.GeoLocation{
		Country: body.Country,
		Region:  body.RegionName,
		City:    body.City,
		Lat:     body.Lat,
		Lon:     body.Lon,
	}
}
