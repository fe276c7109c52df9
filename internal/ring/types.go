// Package ring implements TokenMetadata, the authoritative in-memory ring:
// normal, bootstrap, and leaving membership, plus pending ranges under
// topology change.
//
// See coordinator/internal/model package
// (HashRing, StorageNode, NodeState, TokenRange, PendingRangeInfo,
// LeavingRangeInfo) — generalized from a fixed uint64 hash ring to an
// arbitrary Token ordering, and from in-place mutation to a
// copy-on-write snapshot discipline.
package ring

import "github.com/ringdb/ringdb/internal/partition"

// Endpoint is a network address participating in the ring, e.g.
// "10.0.0.1:9100".
type Endpoint string

// NodeState mirrors model.NodeState lifecycle labels.
type NodeState string

const (
	NodeStateNormal        NodeState = "NORMAL"
	NodeStateBootstrapping NodeState = "BOOT"
	NodeStateLeaving       NodeState = "LEAVING"
	NodeStateLeft          NodeState = "LEFT"
)

// Table identifies a keyspace/table for per-table pending ranges and
// replication factor.
type Table string

// PendingRangeInfo tracks a range being received during bootstrap or
// decommission, mirroring model.PendingRangeInfo.
type PendingRangeInfo struct {
	Range     partition.Range
	Table     Table
	Endpoints []Endpoint
}
