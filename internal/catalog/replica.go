package catalog

import (
	"context"
	"database/sql"
	"sync/atomic"
)

// ReplicaPicker chooses which database handle serves a catalog read.
// Injected into the read path so routing stays testable; no package-level
// state.
type ReplicaPicker interface {
	Pick(ctx context.Context) *sql.DB
}

type single struct {
	db *sql.DB
}

func (s *single) Pick(context.Context) *sql.DB { return s.db }

type roundRobin struct {
	replicas []*sql.DB
	next     atomic.Uint64
}

func (r *roundRobin) Pick(context.Context) *sql.DB {
	n := r.next.Add(1)
	return r.replicas[(n-1)%uint64(len(r.replicas))]
}

// NewReplicaPicker rotates reads across replicas, falling back to the
// primary when none are configured.
func NewReplicaPicker(primary *sql.DB, replicas ...*sql.DB) ReplicaPicker {
	if len(replicas) == 0 {
		return &single{db: primary}
	}
	return &roundRobin{replicas: replicas}
}
