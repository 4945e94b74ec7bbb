package telemetry

import (
	"sync"

	"github.com/markusressel/fangrid/internal/grid"
	"github.com/qdm12/reprint"
)

// Rip is the legacy feedback sentinel for fans owned by a device that is
// considered disconnected. Part of the wire contract, do not change.
const Rip = -666

type Tag int

const (
	// TagNoData marks a fan whose device has not reported since (re)connect.
	TagNoData Tag = iota
	// TagValue marks a live sample.
	TagValue
	// TagDisconnected marks a fan owned by a disconnected or timed out
	// device. The last known values are retained for prefill.
	TagDisconnected
)

// Sample is the most recent feedback entry for one K index.
type Sample struct {
	Tag  Tag     `json:"tag"`
	Rpm  int     `json:"rpm"`
	Duty float64 `json:"duty"`
}

// Store holds the latest feedback vector, one sample per K index. There is
// no history, a new frame replaces the previous one.
type Store interface {
	SizeK() int

	// Ingest applies one telemetry frame for the given device ordinal.
	// Frames whose dataIndex is not newer than the last accepted one for
	// that device are dropped and reported as false.
	Ingest(ordinal int, dataIndex uint64, rpms []int, duties []float64) bool
	// DataIndex returns the last accepted frame counter of a device.
	DataIndex(ordinal int) uint64
	// ResetDevice clears the frame counter and tags after a reconnect.
	// Devices restart their dataIndex on a fresh connection.
	ResetDevice(ordinal int)

	// MarkDisconnected tags every K index owned by the device. Values are
	// kept so the control baseline survives a reconnect.
	MarkDisconnected(ordinal int)
	// MarkFleetDisconnected tags all K indices at once, used when the link
	// worker itself died.
	MarkFleetDisconnected()

	Rpm(k int) (int, bool)
	Duty(k int) (float64, bool)
	Sample(k int) Sample

	// DutyBaseline returns the last known duty per K index, 0.0 where no
	// device has ever reported.
	DutyBaseline() []float64
	// Snapshot returns a deep copy of all samples for display surfaces.
	Snapshot() []Sample
	// WireVectors renders the legacy feedback layout, all RPMs then all
	// duty cycles, with PAD/RIP sentinel values in both halves.
	WireVectors() ([]int, []float64)
}

type store struct {
	mu      sync.RWMutex
	stride  int
	samples []Sample
	// last accepted dataIndex per device ordinal
	indices []uint64
}

func NewStore(placedCount int, stride int) Store {
	return &store{
		stride:  stride,
		samples: make([]Sample, placedCount*stride),
		indices: make([]uint64, placedCount),
	}
}

func (s *store) SizeK() int {
	return len(s.samples)
}

func (s *store) Ingest(ordinal int, dataIndex uint64, rpms []int, duties []float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ordinal < 0 || ordinal >= len(s.indices) {
		return false
	}
	if dataIndex <= s.indices[ordinal] {
		return false
	}
	s.indices[ordinal] = dataIndex

	base := ordinal * s.stride
	for fan := 0; fan < s.stride; fan++ {
		if fan >= len(rpms) && fan >= len(duties) {
			// slots past the reported vector stay padded
			s.samples[base+fan].Tag = TagNoData
			continue
		}
		sample := Sample{Tag: TagValue}
		if fan < len(rpms) {
			sample.Rpm = rpms[fan]
		}
		if fan < len(duties) {
			sample.Duty = duties[fan]
		}
		s.samples[base+fan] = sample
	}
	return true
}

func (s *store) DataIndex(ordinal int) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(s.indices) {
		return 0
	}
	return s.indices[ordinal]
}

func (s *store) ResetDevice(ordinal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ordinal < 0 || ordinal >= len(s.indices) {
		return
	}
	s.indices[ordinal] = 0
	base := ordinal * s.stride
	for fan := 0; fan < s.stride; fan++ {
		// values survive for the control baseline, only the tag resets
		s.samples[base+fan].Tag = TagNoData
	}
}

func (s *store) MarkDisconnected(ordinal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ordinal < 0 || ordinal >= len(s.indices) {
		return
	}
	base := ordinal * s.stride
	for fan := 0; fan < s.stride; fan++ {
		s.samples[base+fan].Tag = TagDisconnected
	}
}

func (s *store) MarkFleetDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.samples {
		s.samples[k].Tag = TagDisconnected
	}
}

func (s *store) Rpm(k int) (int, bool) {
	sample := s.Sample(k)
	return sample.Rpm, sample.Tag == TagValue
}

func (s *store) Duty(k int) (float64, bool) {
	sample := s.Sample(k)
	return sample.Duty, sample.Tag == TagValue
}

func (s *store) Sample(k int) Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k < 0 || k >= len(s.samples) {
		return Sample{Tag: TagNoData}
	}
	return s.samples[k]
}

func (s *store) DutyBaseline() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	baseline := make([]float64, len(s.samples))
	for k, sample := range s.samples {
		baseline[k] = sample.Duty
	}
	return baseline
}

func (s *store) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reprint.This(s.samples).([]Sample)
}

func (s *store) WireVectors() ([]int, []float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rpms := make([]int, len(s.samples))
	duties := make([]float64, len(s.samples))
	for k, sample := range s.samples {
		switch sample.Tag {
		case TagValue:
			rpms[k] = sample.Rpm
			duties[k] = sample.Duty
		case TagDisconnected:
			rpms[k] = Rip
			duties[k] = Rip
		default:
			rpms[k] = grid.Pad
			duties[k] = grid.Pad
		}
	}
	return rpms, duties
}
