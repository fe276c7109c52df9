package routing

import (
	"testing"
	"time"

	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
)

func TestResolveFiltersDeadNaturalEndpoints(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken(partition.Token("0000"), ring.Endpoint("A"))
	tm.UpdateNormalToken(partition.Token("8000"), ring.Endpoint("B"))

	simple := replication.NewSimple(tm, map[ring.Table]int{"t": 2})
	fd := failuredetector.NewHeartbeat(time.Minute)
	fd.UpdateTimestamp("A")
	// B never heartbeats -> dead

	router := New(partition.NewOrderPreserving(), simple, tm, fd)

	plan, err := router.Resolve("t", []byte("0001"))
	if err != nil {
		t.Fatal(err)
	}
	if plan.TotalTarget != 2 {
		t.Fatalf("want total target 2, got %d", plan.TotalTarget)
	}
	if plan.DeadCount != 1 {
		t.Fatalf("want 1 dead, got %d", plan.DeadCount)
	}
	if len(plan.AliveAll) != 1 || plan.AliveAll[0] != ring.Endpoint("A") {
		t.Fatalf("want alive [A], got %v", plan.AliveAll)
	}
}

func TestResolveIncludesPendingEndpoints(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken(partition.Token("0000"), ring.Endpoint("A"))
	tm.SetPendingRanges("t", map[partition.Range][]ring.Endpoint{
		{Left: partition.Token(""), Right: partition.Token("ffff")}: {"C"},
	})

	simple := replication.NewSimple(tm, map[ring.Table]int{"t": 1})
	fd := failuredetector.NewHeartbeat(time.Minute)
	fd.UpdateTimestamp("A")
	fd.UpdateTimestamp("C")

	router := New(partition.NewOrderPreserving(), simple, tm, fd)

	plan, err := router.Resolve("t", []byte("0001"))
	if err != nil {
		t.Fatal(err)
	}
	if plan.TotalTarget != 2 {
		t.Fatalf("want total target 2 (natural+pending), got %d", plan.TotalTarget)
	}
	foundC := false
	for _, ep := range plan.AliveAll {
		if ep == ring.Endpoint("C") {
			foundC = true
		}
	}
	if !foundC {
		t.Fatalf("expected pending endpoint C in alive set, got %v", plan.AliveAll)
	}
}
