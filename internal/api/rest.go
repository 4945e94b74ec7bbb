package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/markusressel/fangrid/internal/dispatch"
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/grid"
	"github.com/markusressel/fangrid/internal/telemetry"
)

const (
	urlParamMac     = "mac"
	indentationChar = "  "
)

type (
	Result struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
)

// RestService exposes the fleet, grid and telemetry state to operator
// tooling. All endpoints return snapshots except the command endpoint,
// which queues fire-and-forget frames.
type RestService struct {
	registry   fleet.Registry
	store      telemetry.Store
	mapper     grid.Mapper
	dispatcher *dispatch.Dispatcher
}

func NewRestService(
	registry fleet.Registry,
	store telemetry.Store,
	mapper grid.Mapper,
	dispatcher *dispatch.Dispatcher,
) *RestService {
	return &RestService{
		registry:   registry,
		store:      store,
		mapper:     mapper,
		dispatcher: dispatcher,
	}
}

func (s *RestService) CreateRestService() *echo.Echo {
	echoRest := echo.New()
	echoRest.HideBanner = true

	// Root level middleware
	echoRest.Pre(middleware.AddTrailingSlash())

	echoRest.Use(middleware.Secure())

	echoRest.Use(middleware.Logger())
	echoRest.Use(middleware.Recover())
	echoRest.Use(echoprometheus.NewMiddleware("fangrid"))

	echoRest.GET("/alive/", isAlive)

	s.registerFleetEndpoints(echoRest)
	s.registerTelemetryEndpoints(echoRest)
	s.registerGridEndpoints(echoRest)
	s.registerCommandEndpoints(echoRest)

	return echoRest
}

// returns an empty "ok" answer
func isAlive(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// return a "not found" message
func returnNotFound(c echo.Context, mac string) (err error) {
	return c.JSONPretty(http.StatusNotFound, &Result{
		Name:    "Not found",
		Message: "No device with mac '" + mac + "' found",
	}, indentationChar)
}

// return the error message of an error
func returnError(c echo.Context, e error) (err error) {
	return c.JSONPretty(http.StatusInternalServerError, &Result{
		Name:    "Unknown Error",
		Message: e.Error(),
	}, indentationChar)
}
