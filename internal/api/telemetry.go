package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type WireTelemetry struct {
	Rpms   []int     `json:"rpms"`
	Duties []float64 `json:"duties"`
}

func (s *RestService) registerTelemetryEndpoints(rest *echo.Echo) {
	group := rest.Group("/telemetry")

	group.GET("/", s.getTelemetry)
	group.GET("/wire/", s.getWireTelemetry)
}

// returns the tagged feedback snapshot, one sample per fan index
func (s *RestService) getTelemetry(c echo.Context) error {
	data := s.store.Snapshot()
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

// returns the snapshot in legacy wire encoding, sentinels included
func (s *RestService) getWireTelemetry(c echo.Context) error {
	rpms, duties := s.store.WireVectors()
	return c.JSONPretty(http.StatusOK, &WireTelemetry{
		Rpms:   rpms,
		Duties: duties,
	}, indentationChar)
}
