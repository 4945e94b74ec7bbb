package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/fangrid/internal/grid"
)

type GridCell struct {
	G      int `json:"g"`
	Layer  int `json:"layer"`
	Row    int `json:"row"`
	Column int `json:"column"`
	// K is the fan index driving this cell, or the pad sentinel for
	// unoccupied cells.
	K int `json:"k"`
}

type GridView struct {
	Dimensions grid.Dimensions `json:"dimensions"`
	Cells      []GridCell      `json:"cells"`
}

func (s *RestService) registerGridEndpoints(rest *echo.Echo) {
	group := rest.Group("/grid")

	group.GET("/", s.getGrid)
}

// returns the grid dimensions and the fan occupying each cell
func (s *RestService) getGrid(c echo.Context) error {
	view := GridView{
		Dimensions: s.mapper.Dims(),
		Cells:      make([]GridCell, 0, s.mapper.SizeG()),
	}
	for g := 0; g < s.mapper.SizeG(); g++ {
		row, col := s.mapper.CellOf(g)
		view.Cells = append(view.Cells, GridCell{
			G:      g,
			Layer:  s.mapper.LayerOf(g),
			Row:    row,
			Column: col,
			K:      s.mapper.IndexGK(g),
		})
	}
	return c.JSONPretty(http.StatusOK, view, indentationChar)
}
