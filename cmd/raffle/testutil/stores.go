// Package testutil provides in-memory stores with failure injection for
// exercising the raffle services without Postgres.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/repository"
)

// ErrInjected is the default failure returned by injected faults
var ErrInjected = errors.New("injected store failure")

// Stores bundles the three stores over one shared state, so a reset clears
// the same roster admissions write to
type Stores struct {
	Roster *Roster
	Cycle  *Cycle
	Draws  *Draws
}

// NewStores creates empty stores with an open cycle
func NewStores() *Stores {
	roster := &Roster{}
	return &Stores{
		Roster: roster,
		Cycle:  &Cycle{roster: roster, state: models.Cycle{State: models.CycleOpen, Version: 1}},
		Draws:  &Draws{records: map[uuid.UUID]models.DrawRecord{}, snapshots: map[uuid.UUID]map[int]models.RosterSnapshotEntry{}},
	}
}

// Roster is an in-memory RosterStore
type Roster struct {
	mu      sync.Mutex
	entries []models.CandidateEntry
	nextID  int64

	// BulkErr makes BulkInsert fail
	BulkErr error
	// FailInsertEvery makes every Nth Insert call fail (0 disables)
	FailInsertEvery int
	// ReadErr makes ReadAll fail
	ReadErr error
	inserts int
}

// Insert stamps AdmittedAt with the current time when the caller left it
// zero, as the admitted_at column default does
func (r *Roster) Insert(_ context.Context, entry models.CandidateEntry) (models.CandidateEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inserts++
	if r.FailInsertEvery > 0 && r.inserts%r.FailInsertEvery == 0 {
		return models.CandidateEntry{}, ErrInjected
	}
	r.nextID++
	entry.ID = r.nextID
	if entry.AdmittedAt.IsZero() {
		entry.AdmittedAt = time.Now()
	}
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *Roster) BulkInsert(_ context.Context, entries []models.CandidateEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.BulkErr != nil {
		return 0, r.BulkErr
	}
	now := time.Now()
	for _, e := range entries {
		r.nextID++
		e.ID = r.nextID
		if e.AdmittedAt.IsZero() {
			e.AdmittedAt = now
		}
		r.entries = append(r.entries, e)
	}
	return int64(len(entries)), nil
}

func (r *Roster) ReadAll(context.Context) ([]models.CandidateEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ReadErr != nil {
		return nil, r.ReadErr
	}
	out := make([]models.CandidateEntry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AdmittedAt.Equal(out[j].AdmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AdmittedAt.Before(out[j].AdmittedAt)
	})
	return out, nil
}

func (r *Roster) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}

func (r *Roster) clear() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.entries))
	r.entries = nil
	return n
}

// Len returns the roster size
func (r *Roster) Len() int {
	n, _ := r.Count(context.Background())
	return n
}

// Cycle is an in-memory CycleStore
type Cycle struct {
	mu     sync.Mutex
	roster *Roster
	state  models.Cycle

	// GetErr makes Get fail
	GetErr error
	// ResetErr makes Reset and ResetDrawn fail
	ResetErr error
	// OnClaim runs inside Claim before the compare, for race tests
	OnClaim func()
}

func (c *Cycle) Get(context.Context) (*models.Cycle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.GetErr != nil {
		return nil, c.GetErr
	}
	cp := c.state
	return &cp, nil
}

func (c *Cycle) Freeze(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.State != models.CycleOpen {
		return false, nil
	}
	c.state.State = models.CycleFrozen
	c.state.Version++
	return true, nil
}

func (c *Cycle) Claim(_ context.Context, version int64, claim models.Claim) (bool, error) {
	if c.OnClaim != nil {
		c.OnClaim()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.State != models.CycleFrozen || c.state.Version != version {
		return false, nil
	}
	c.state.State = models.CycleDrawn
	c.state.Version++
	c.state.DrawID = &claim.DrawID
	c.state.Sequence = &claim.Sequence
	c.state.RosterSize = &claim.RosterSize
	c.state.DrawnAt = &claim.DrawnAt
	return true, nil
}

func (c *Cycle) Reset(ctx context.Context) (int64, error) {
	return c.reset(ctx, nil)
}

func (c *Cycle) ResetDrawn(ctx context.Context, drawID uuid.UUID) (int64, error) {
	return c.reset(ctx, &drawID)
}

func (c *Cycle) reset(_ context.Context, drawID *uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ResetErr != nil {
		return 0, c.ResetErr
	}
	if drawID != nil && (c.state.State != models.CycleDrawn || c.state.DrawID == nil || *c.state.DrawID != *drawID) {
		return -1, nil
	}

	c.state = models.Cycle{State: models.CycleOpen, Version: c.state.Version + 1}
	return c.roster.clear(), nil
}

// State returns the current cycle state
func (c *Cycle) State() models.CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.State
}

// Draws is an in-memory DrawStore
type Draws struct {
	mu        sync.Mutex
	records   map[uuid.UUID]models.DrawRecord
	snapshots map[uuid.UUID]map[int]models.RosterSnapshotEntry

	// BulkErr makes InsertRecordWithSnapshot fail without writing
	BulkErr error
	// SnapshotErr makes InsertSnapshotEntry fail
	SnapshotErr error
	// ReadErr makes Get and Snapshot fail
	ReadErr error
}

func (d *Draws) InsertRecordWithSnapshot(_ context.Context, rec *models.DrawRecord, snapshot []models.RosterSnapshotEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.BulkErr != nil {
		return d.BulkErr
	}
	if len(d.snapshots[rec.ID]) > 0 {
		return errors.New("duplicate key value violates unique constraint")
	}
	if _, ok := d.records[rec.ID]; !ok {
		d.records[rec.ID] = *rec
	}
	rows := make(map[int]models.RosterSnapshotEntry, len(snapshot))
	for _, s := range snapshot {
		rows[s.OriginalPosition] = s
	}
	d.snapshots[rec.ID] = rows
	return nil
}

func (d *Draws) InsertRecord(_ context.Context, rec *models.DrawRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[rec.ID]; !ok {
		d.records[rec.ID] = *rec
	}
	return nil
}

func (d *Draws) InsertSnapshotEntry(_ context.Context, entry models.RosterSnapshotEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.SnapshotErr != nil {
		return d.SnapshotErr
	}
	rows, ok := d.snapshots[entry.DrawID]
	if !ok {
		rows = map[int]models.RosterSnapshotEntry{}
		d.snapshots[entry.DrawID] = rows
	}
	if _, exists := rows[entry.OriginalPosition]; !exists {
		rows[entry.OriginalPosition] = entry
	}
	return nil
}

func (d *Draws) Get(_ context.Context, id uuid.UUID) (*models.DrawRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	rec, ok := d.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (d *Draws) List(_ context.Context, limit int) ([]models.DrawRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]models.DrawRecord, 0, len(d.records))
	for _, rec := range d.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DrawnAt.After(out[j].DrawnAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *Draws) Snapshot(_ context.Context, drawID uuid.UUID) ([]models.RosterSnapshotEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	rows := d.snapshots[drawID]
	out := make([]models.RosterSnapshotEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalPosition < out[j].OriginalPosition })
	return out, nil
}

func (d *Draws) SnapshotCount(_ context.Context, drawID uuid.UUID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snapshots[drawID]), nil
}

// Records returns every stored draw record
func (d *Draws) Records() []models.DrawRecord {
	d.mu.Lock()
	n := len(d.records)
	d.mu.Unlock()

	out, _ := d.List(context.Background(), n+1)
	return out
}
