package estimate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/campus-dispatch/internal/models"
)

// OSRMClient performs route/eta lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
	Fallback Estimator // used when the routing engine is unreachable
}

func NewOSRMClient(endpoint string, fallback Estimator) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}, Fallback: fallback}
}

// EstimateSeconds queries OSRM /route between points and returns
// duration in seconds.
func (o *OSRMClient) EstimateSeconds(from, to models.Coord) (float64, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	resp, err := o.Client.Get(url)
	if err != nil {
		return o.fallback(from, to, err)
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.fallback(from, to, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return o.fallback(from, to, fmt.Errorf("osrm no route: %v", out.Code))
	}
	return out.Routes[0].Duration, nil
}

func (o *OSRMClient) fallback(from, to models.Coord, err error) (float64, error) {
	if o.Fallback != nil {
		return o.Fallback.EstimateSeconds(from, to)
	}
	return 0, err
}
