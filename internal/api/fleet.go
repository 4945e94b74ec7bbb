package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *RestService) registerFleetEndpoints(rest *echo.Echo) {
	group := rest.Group("/fleet")

	group.GET("/", s.getDevices)
	group.GET("/:"+urlParamMac+"/", s.getDevice)
}

// returns all known devices, placed and available
func (s *RestService) getDevices(c echo.Context) error {
	data := s.registry.Devices()
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func (s *RestService) getDevice(c echo.Context) error {
	mac := c.Param(urlParamMac)
	data, exists := s.registry.Device(mac)
	if !exists {
		return returnNotFound(c, mac)
	} else {
		return c.JSONPretty(http.StatusOK, data, indentationChar)
	}
}
