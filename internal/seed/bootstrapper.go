// Package seed plants the default prompt library the first time the store
// comes up empty. Seeding is decided from the live mirror, never from a
// direct read, so it only fires after both collections have reported in.
package seed

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"promptlib/api/internal/store"
	"promptlib/api/internal/transfer"
)

// Phase is the seeding lifecycle. It only ever moves forward; once seeded
// (or found non-empty) the bootstrapper never writes again.
type Phase int

const (
	// PhaseUnknown means we have not yet seen both collections.
	PhaseUnknown Phase = iota
	// PhaseSeeding means a seed write is in flight.
	PhaseSeeding
	// PhaseSeeded means seeding ran or was found unnecessary.
	PhaseSeeded
)

type batchCommitter interface {
	CommitBatch(ctx context.Context, ops []store.BatchOp) error
}

type mirrorView interface {
	BothObserved() bool
	IsEmpty() bool
}

type changePublisher interface {
	Publish(ctx context.Context, collection string)
}

// Bootstrapper watches snapshot arrivals and seeds the store exactly once
// when both collections turn out empty.
type Bootstrapper struct {
	committer batchCommitter
	mirror    mirrorView
	publisher changePublisher
	seedFile  string
	now       func() time.Time

	mu    sync.Mutex
	phase Phase
}

// NewBootstrapper builds a bootstrapper reading its data from seedFile. An
// empty seedFile disables seeding.
func NewBootstrapper(committer batchCommitter, mirror mirrorView, publisher changePublisher, seedFile string) *Bootstrapper {
	return &Bootstrapper{
		committer: committer,
		mirror:    mirror,
		publisher: publisher,
		seedFile:  seedFile,
		now:       time.Now,
	}
}

// Phase reports the current lifecycle phase.
func (b *Bootstrapper) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Observe is called after every applied snapshot. The first time both
// collections have been observed it decides: non-empty data means seeding is
// unnecessary, empty data triggers the one seed write. A failed write drops
// back to unknown so the next snapshot retries.
func (b *Bootstrapper) Observe(ctx context.Context) {
	b.mu.Lock()
	if b.phase != PhaseUnknown || !b.mirror.BothObserved() {
		b.mu.Unlock()
		return
	}
	if !b.mirror.IsEmpty() {
		b.phase = PhaseSeeded
		b.mu.Unlock()
		return
	}
	b.phase = PhaseSeeding
	b.mu.Unlock()

	if err := b.seed(ctx); err != nil {
		log.Printf("seed: initial data load failed: %v", err)
		b.mu.Lock()
		b.phase = PhaseUnknown
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.phase = PhaseSeeded
	b.mu.Unlock()
}

func (b *Bootstrapper) seed(ctx context.Context) error {
	plan, err := b.loadPlan()
	if err != nil {
		return err
	}

	ops := plan.Ops()
	if len(ops) == 0 {
		log.Printf("seed: no seed data available, leaving store empty")
		return nil
	}

	if err := b.committer.CommitBatch(ctx, ops); err != nil {
		return fmt.Errorf("commit seed batch: %w", err)
	}
	log.Printf("seed: planted %d categories and %d prompts", len(plan.NewCategories), len(plan.NewPrompts))

	// The mirror only updates through the subscription path; without these
	// signals every client keeps showing the pre-seed empty snapshots.
	if len(plan.NewCategories) > 0 {
		b.publisher.Publish(ctx, store.CollectionCategories)
	}
	if len(plan.NewPrompts) > 0 {
		b.publisher.Publish(ctx, store.CollectionPrompts)
	}
	return nil
}

// loadPlan reads the seed file as an import document. Categories are sorted
// so the seeded dropdown order matches the mirror ordering.
func (b *Bootstrapper) loadPlan() (transfer.Plan, error) {
	if b.seedFile == "" {
		return transfer.Plan{}, nil
	}

	raw, err := os.ReadFile(b.seedFile)
	if os.IsNotExist(err) {
		log.Printf("seed: seed file %s not found, skipping", b.seedFile)
		return transfer.Plan{}, nil
	}
	if err != nil {
		return transfer.Plan{}, fmt.Errorf("read seed file: %w", err)
	}

	input, err := transfer.ParseImport(raw)
	if err != nil {
		return transfer.Plan{}, fmt.Errorf("parse seed file %s: %w", b.seedFile, err)
	}

	plan := transfer.PlanImport(input, nil, b.now())
	sort.Strings(plan.NewCategories)
	return plan, nil
}
