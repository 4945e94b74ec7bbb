package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/fangrid/internal/dispatch"
)

// CommandRequest carries a legacy command code, an optional MAC subset
// (empty = whole fleet) and code specific payload fields.
type CommandRequest struct {
	Code    int      `json:"code"`
	Macs    []string `json:"macs"`
	Payload []string `json:"payload"`
}

func (s *RestService) registerCommandEndpoints(rest *echo.Echo) {
	group := rest.Group("/command")

	group.POST("/", s.postCommand)
}

// queues a command for the fleet; delivery is fire-and-forget
func (s *RestService) postCommand(c echo.Context) error {
	request := new(CommandRequest)
	if err := c.Bind(request); err != nil {
		return c.JSONPretty(http.StatusBadRequest, &Result{
			Name:    "Bad request",
			Message: err.Error(),
		}, indentationChar)
	}
	target := dispatch.Subset(request.Macs...)
	if err := s.dispatcher.SendGeneric(dispatch.Command(request.Code), target, request.Payload); err != nil {
		return returnError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}
