package session

import (
	"sync"

	"github.com/markusressel/fangrid/internal/dispatch"
	"github.com/markusressel/fangrid/internal/grid"
	"github.com/markusressel/fangrid/internal/telemetry"
	"github.com/markusressel/fangrid/internal/util"
)

type LayerScope int

const (
	// ScopeAllLayers lets an edit reach selected cells on every layer.
	ScopeAllLayers LayerScope = iota
	// ScopeCurrentLayer restricts edits to the active layer, even for
	// cells that are nominally selected on other layers.
	ScopeCurrentLayer
)

// Transform computes the duty value written into the targeted cells. It is
// evaluated once per Map call with the cell the operator acted on and the
// result is applied to every eligible cell.
type Transform func(row int, col int) float64

// Const returns a transform that writes a fixed duty everywhere. The duty
// is coerced into [0, 1].
func Const(duty float64) Transform {
	duty = util.Coerce(duty, 0, 1)
	return func(int, int) float64 {
		return duty
	}
}

// VectorSender pushes a complete K-indexed control vector to the fleet.
type VectorSender interface {
	SendControlVector(vector []float64, target dispatch.Target) error
}

// Session is the operator-facing edit workflow: cells are selected on the
// grid, a transform produces the new duty, and everything that was not
// edited is refilled from the last known telemetry so a partial edit never
// disturbs the rest of the fleet.
type Session struct {
	mapper grid.Mapper
	store  telemetry.Store
	sender VectorSender

	mu             sync.Mutex
	selection      map[int]bool
	selectionCount int
	layerScope     LayerScope
	activeLayer    int
	holdSelection  bool

	paused   bool
	baseline []float64
}

func NewSession(mapper grid.Mapper, store telemetry.Store, sender VectorSender) *Session {
	return &Session{
		mapper:    mapper,
		store:     store,
		sender:    sender,
		selection: map[int]bool{},
	}
}

// Map builds and sends the control vector for one edit: every K index is
// prefilled with the latest known duty (0.0 where none ever arrived), then
// the transform result overwrites the indices behind the effective
// selection. An empty selection targets the whole grid.
func (s *Session) Map(transform Transform, row int, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vector := s.prefill()
	duty := transform(row, col)

	for _, g := range s.effectiveSelection() {
		if s.layerScope == ScopeCurrentLayer && s.mapper.LayerOf(g) != s.activeLayer {
			continue
		}
		k := s.mapper.IndexGK(g)
		if k == grid.Pad {
			continue
		}
		vector[k] = duty
	}

	err := s.sender.SendControlVector(vector, dispatch.All())
	if !s.holdSelection {
		s.selection = map[int]bool{}
		s.selectionCount = 0
	}
	return err
}

// prefill returns a fresh copy of the duty baseline. While the session is
// paused the baseline captured at pause time is reused, so live telemetry
// cannot shift values underneath an ongoing edit.
func (s *Session) prefill() []float64 {
	if !s.paused {
		s.baseline = s.store.DutyBaseline()
	}
	vector := make([]float64, s.store.SizeK())
	copy(vector, s.baseline)
	return vector
}

func (s *Session) effectiveSelection() []int {
	if s.selectionCount == 0 {
		all := make([]int, s.mapper.SizeG())
		for g := range all {
			all[g] = g
		}
		return all
	}
	selected := make([]int, 0, s.selectionCount)
	for g := range s.selection {
		selected = append(selected, g)
	}
	return selected
}

func (s *Session) Select(g int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(g)
}

func (s *Session) Deselect(g int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selection[g] {
		return
	}
	delete(s.selection, g)
	s.selectionCount--
}

func (s *Session) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for g := 0; g < s.mapper.SizeG(); g++ {
		s.selectLocked(g)
	}
}

func (s *Session) DeselectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = map[int]bool{}
	s.selectionCount = 0
}

// SelectDeep selects the cell at (row, col) on every layer of the grid.
func (s *Session) SelectDeep(row int, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for layer := 0; ; layer++ {
		g := s.mapper.IndexG(layer, row, col)
		if g == grid.Pad {
			return
		}
		s.selectLocked(g)
	}
}

func (s *Session) selectLocked(g int) {
	if g < 0 || g >= s.mapper.SizeG() {
		return
	}
	if s.selection[g] {
		return
	}
	s.selection[g] = true
	s.selectionCount++
}

func (s *Session) Selected(g int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection[g]
}

func (s *Session) SelectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionCount
}

// Pause freezes the prefill baseline at its current state. Telemetry
// keeps flowing into the store, the session just stops looking at it.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.baseline = s.store.DutyBaseline()
	s.paused = true
}

// Resume lets the next edit read live telemetry again.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) SetLayerScope(scope LayerScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layerScope = scope
}

func (s *Session) LayerScope() LayerScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layerScope
}

func (s *Session) SetActiveLayer(layer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeLayer = layer
}

func (s *Session) ActiveLayer() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLayer
}

func (s *Session) SetHoldSelection(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdSelection = hold
}

func (s *Session) HoldSelection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdSelection
}
