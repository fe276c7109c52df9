// Package snitch provides rack/datacenter topology lookups and proximity
// sorting — one of the external collaborators names
// (Snitch.getRack/getDatacenter/sortByProximity).
//
// See rack-free StorageNode model
// (coordinator/internal/model/hashring.go); the model has no snitch of
// its own, so this is built in the idiom of its client/config layers
// (a small interface plus a static, config-driven implementation) rather
// than left unimplemented.
package snitch

import (
	"sort"

	"github.com/ringdb/ringdb/internal/ring"
)

// Snitch answers rack/datacenter and proximity questions about
// endpoints.
type Snitch interface {
	GetRack(ep ring.Endpoint) string
	GetDatacenter(ep ring.Endpoint) string
	SortByProximity(source ring.Endpoint, endpoints []ring.Endpoint) []ring.Endpoint
}

// Static is a snitch backed by a fixed, operator-supplied endpoint ->
// (datacenter, rack) table, the simplest faithful stand-in for the
// external snitch collaborator.
type Static struct {
	racks map[ring.Endpoint]string
	dcs   map[ring.Endpoint]string
}

// NewStatic builds a Static snitch from a rack table and an optional
// datacenter table (nil means every endpoint is in the same datacenter).
func NewStatic(racks map[ring.Endpoint]string, dcs map[ring.Endpoint]string) *Static {
	if dcs == nil {
		dcs = make(map[ring.Endpoint]string)
	}
	return &Static{racks: racks, dcs: dcs}
}

func (s *Static) GetRack(ep ring.Endpoint) string {
	if r, ok := s.racks[ep]; ok {
		return r
	}
	return "UNKNOWN_RACK"
}

func (s *Static) GetDatacenter(ep ring.Endpoint) string {
	if d, ok := s.dcs[ep]; ok {
		return d
	}
	return "UNKNOWN_DC"
}

// SortByProximity orders endpoints by datacenter locality to source (same
// datacenter first), then stably by input order. This is a deliberately
// simple proximity model — true network-distance sorting is out of
// scope; no cross-datacenter tuning beyond rack awareness is provided.
func (s *Static) SortByProximity(source ring.Endpoint, endpoints []ring.Endpoint) []ring.Endpoint {
	sourceDC := s.GetDatacenter(source)
	out := make([]ring.Endpoint, len(endpoints))
	copy(out, endpoints)

	sort.SliceStable(out, func(i, j int) bool {
		iLocal := s.GetDatacenter(out[i]) == sourceDC
		jLocal := s.GetDatacenter(out[j]) == sourceDC
		return iLocal && !jLocal
	})
	return out
}
