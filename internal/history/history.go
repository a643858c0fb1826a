package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
	"github.com/rs/zerolog/log"
)

// ErrNoChanges is returned when an update leaves every tracked field as it was.
var ErrNoChanges = errors.New("no tracked fields changed")

// Action is the kind of change recorded.
type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionDeleted Action = "DELETED"
)

// Tracked field names.
const (
	FieldFlightWindowStart = "flightWindowStart"
	FieldFlightWindowEnd   = "flightWindowEnd"
	FieldProjectTag        = "projectTag"
	FieldDeleted           = "deleted"
)

// Change is the before and after value of one field.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Entry is one immutable history record of an organisation report.
type Entry struct {
	ID       string            `json:"id"`
	ReportID string            `json:"reportId"`
	Action   Action            `json:"action"`
	By       identity.Ref      `json:"by"`
	At       time.Time         `json:"at"`
	Changes  map[string]Change `json:"changes"`
}

// Fields holds the editable report metadata. A nil field is not part of
// an update.
type Fields struct {
	FlightWindowStart *time.Time
	FlightWindowEnd   *time.Time
	ProjectTag        *string
}

// Diff compares the whitelisted fields set in updated against previous.
// Unchanged fields are omitted.
func Diff(previous, updated Fields) map[string]Change {
	changes := make(map[string]Change)

	if updated.FlightWindowStart != nil && !sameTime(previous.FlightWindowStart, updated.FlightWindowStart) {
		changes[FieldFlightWindowStart] = Change{From: timeValue(previous.FlightWindowStart), To: timeValue(updated.FlightWindowStart)}
	}
	if updated.FlightWindowEnd != nil && !sameTime(previous.FlightWindowEnd, updated.FlightWindowEnd) {
		changes[FieldFlightWindowEnd] = Change{From: timeValue(previous.FlightWindowEnd), To: timeValue(updated.FlightWindowEnd)}
	}
	if updated.ProjectTag != nil && (previous.ProjectTag == nil || *previous.ProjectTag != *updated.ProjectTag) {
		changes[FieldProjectTag] = Change{From: stringValue(previous.ProjectTag), To: *updated.ProjectTag}
	}

	return changes
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func stringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Collection returns the history collection of an organisation report.
func Collection(orgID, reportID string) string {
	return docstore.Join("organisations", orgID, "reports", reportID, "history")
}

// Ledger appends and lists history entries.
type Ledger struct {
	store docstore.Store
	now   func() time.Time
}

// NewLedger creates a ledger on top of store.
func NewLedger(store docstore.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an entry for action. UPDATED entries carry the diff of
// updated against previous and fail with ErrNoChanges when it is empty.
// DELETED entries carry the synthetic deleted change. Every call creates a
// new document, so concurrent edits never overwrite each other's entries.
func (l *Ledger) Record(ctx context.Context, orgID, reportID string, action Action, actor identity.Ref, previous, updated Fields) (*Entry, error) {
	var changes map[string]Change
	switch action {
	case ActionCreated:
		changes = map[string]Change{}
	case ActionUpdated:
		changes = Diff(previous, updated)
		if len(changes) == 0 {
			return nil, ErrNoChanges
		}
	case ActionDeleted:
		changes = map[string]Change{FieldDeleted: {From: false, To: true}}
	default:
		return nil, fmt.Errorf("unknown history action %q", action)
	}

	at := l.now()
	entry := &Entry{
		ID:       ids.NewAt(at),
		ReportID: reportID,
		Action:   action,
		By:       actor,
		At:       at,
		Changes:  changes,
	}

	path := docstore.Join(Collection(orgID, reportID), entry.ID)
	if err := l.store.Put(ctx, path, entry, docstore.IfVersion(0)); err != nil {
		return nil, fmt.Errorf("failed to append history entry: %w", err)
	}

	log.Info().
		Str("org_id", orgID).
		Str("report_id", reportID).
		Str("action", string(action)).
		Str("actor_id", actor.ID).
		Msg("Report history recorded")

	return entry, nil
}

// List returns the entries of a report, newest first. Entries with the same
// timestamp keep the order they were written in.
func (l *Ledger) List(ctx context.Context, orgID, reportID string) ([]Entry, error) {
	docs, err := l.store.List(ctx, Collection(orgID, reportID), docstore.Query{OrderBy: "at", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		var e Entry
		if err := doc.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
