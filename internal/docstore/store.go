package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no document exists at a path
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a version-checked write loses a race
	ErrConflict = errors.New("document version conflict")

	// ErrInvalidPath is returned for empty or malformed document paths
	ErrInvalidPath = errors.New("invalid document path")
)

// Document is a stored JSON object together with its bookkeeping fields.
type Document struct {
	Path      string
	ID        string
	Data      json.RawMessage
	Version   int64
	Seq       int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.Path, err)
	}
	return nil
}

// Query selects documents of one collection.
type Query struct {
	// Where holds top-level field equality filters.
	Where map[string]any
	// OrderBy names a top-level field; RFC 3339 strings compare as times.
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is a tenant document store with collection/document paths such as
// "organisations/acme/reports/01J...".
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Put(ctx context.Context, path string, doc any, opts ...PutOption) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// Watch emits the full result set of q now and after every change to the
	// collection. The channel is closed when ctx is done.
	Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error)
	Ping(ctx context.Context) error
}

type putOptions struct {
	merge     bool
	ifVersion int64
	checkVer  bool
}

// PutOption changes how Put writes a document.
type PutOption func(*putOptions)

// Merge shallow-merges the top-level fields of the new document into the
// existing one instead of replacing it.
func Merge() PutOption {
	return func(o *putOptions) { o.merge = true }
}

// IfVersion makes the write conditional on the stored version. Version 0
// means the document must not exist yet.
func IfVersion(version int64) PutOption {
	return func(o *putOptions) {
		o.ifVersion = version
		o.checkVer = true
	}
}

func applyPutOptions(opts []PutOption) putOptions {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the collection and document id of a path.
func Split(path string) (collection, id string, err error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", "", ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return "", "", ErrInvalidPath
		}
	}
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return "", "", ErrInvalidPath
	}
	return path[:idx], path[idx+1:], nil
}

func encodeObject(doc any) (json.RawMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("document must encode to a JSON object")
	}
	return data, nil
}

func mergeObjects(base, patch json.RawMessage) (json.RawMessage, error) {
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("failed to decode stored document: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	if merged == nil {
		merged = make(map[string]json.RawMessage, len(fields))
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func topLevel(data json.RawMessage) map[string]any {
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)
	return fields
}

func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func matches(data json.RawMessage, where map[string]any) bool {
	if len(where) == 0 {
		return true
	}
	fields := topLevel(data)
	for k, want := range where {
		got, ok := fields[k]
		if !ok || !reflect.DeepEqual(got, normalizeValue(want)) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0
		}
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
		return strings.Compare(av, bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, ok := b.(bool)
		if !ok || av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

// applyQuery filters, orders and limits docs. Ties on the order field keep
// insertion order.
func applyQuery(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(d.Data, q.Where) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	if q.OrderBy != "" {
		keys := make(map[string]any, len(out))
		for _, d := range out {
			keys[d.Path] = topLevel(d.Data)[q.OrderBy]
		}
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(keys[out[i].Path], keys[out[j].Path])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
