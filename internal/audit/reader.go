package audit

import (
	"context"
	"fmt"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
)

type Reader struct {
	store docstore.Store
}

func NewReader(store docstore.Store) *Reader {
	return &Reader{store: store}
}

// Filter narrows an audit listing. A zero Limit means the default page.
type Filter struct {
	Action string
	Limit  int
}

// ListByOrg returns the newest events of an organisation first.
func (r *Reader) ListByOrg(ctx context.Context, orgID string, f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := docstore.Query{
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   limit,
	}
	if f.Action != "" {
		q.Where = map[string]any{"action": f.Action}
	}

	docs, err := r.store.List(ctx, Collection(orgID), q)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	out := make([]Event, 0, len(docs))
	for _, doc := range docs {
		var ev Event
		if err := doc.Decode(&ev); err != nil {
			return nil, fmt.Errorf("failed to decode audit event: %w", err)
		}
		if ev.Meta == nil {
			ev.Meta = map[string]any{}
		}
		out = append(out, ev)
	}
	return out, nil
}
