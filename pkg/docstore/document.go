package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Reserved field names. Stores maintain them; callers never write them.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath is returned for malformed collection or document paths.
	ErrInvalidPath = errors.New("invalid document path")
	// ErrAlreadyExists is returned by CreateAt when the path is taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// Fields is the JSON-compatible payload of a document.
type Fields map[string]interface{}

// Document is a stored document as returned by a Store.
type Document struct {
	ID        string
	Path      string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode copies the document into v through its JSON representation.
// The id and server timestamps are exposed under the reserved field names.
func (d Document) Decode(v interface{}) error {
	m := make(map[string]interface{}, len(d.Fields)+3)
	for k, val := range d.Fields {
		m[k] = val
	}
	m[FieldID] = d.ID
	m[FieldCreatedAt] = d.CreatedAt
	m[FieldUpdatedAt] = d.UpdatedAt
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encode document %s", d.Path)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(err, "decode document %s", d.Path)
	}
	return nil
}

// OpKind identifies a batch operation.
type OpKind string

const (
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is a single write inside an atomic batch.
type Op struct {
	Kind   OpKind `json:"kind"`
	Path   string `json:"path"`
	Fields Fields `json:"fields,omitempty"`
}

// UpdateOp builds a partial-merge update for the document at path.
func UpdateOp(path string, fields Fields) Op {
	return Op{Kind: OpUpdate, Path: path, Fields: fields}
}

// DeleteOp builds a delete for the document at path.
func DeleteOp(path string) Op {
	return Op{Kind: OpDelete, Path: path}
}

// JoinPath joins path segments with "/".
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitDocumentPath splits "a/b/c/d" into collection "a/b/c" and id "d".
// Document paths have an even number of non-empty segments.
func SplitDocumentPath(path string) (collection, id string, err error) {
	segs, err := segments(path)
	if err != nil {
		return "", "", err
	}
	if len(segs)%2 != 0 {
		return "", "", errors.Wrapf(ErrInvalidPath, "%q is not a document path", path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// ValidateCollectionPath checks that path names a collection
// (an odd number of non-empty segments).
func ValidateCollectionPath(path string) error {
	segs, err := segments(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return errors.Wrapf(ErrInvalidPath, "%q is not a collection path", path)
	}
	return nil
}

func segments(path string) ([]string, error) {
	if path == "" {
		return nil, errors.Wrap(ErrInvalidPath, "empty path")
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return nil, errors.Wrapf(ErrInvalidPath, "empty segment in %q", path)
		}
	}
	return segs, nil
}

// record is the persisted shape shared by the local and redis backends.
type record struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Fields     Fields    `json:"fields"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (r *record) document() Document {
	return Document{
		ID:        r.ID,
		Path:      JoinPath(r.Collection, r.ID),
		Fields:    cloneFields(r.Fields),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// applyOps replays ops against the current state returned by load and
// returns the final state of every touched path (nil means deleted).
// Nothing is written; callers commit the result atomically or not at all.
func applyOps(ops []Op, now time.Time, load func(path string) (*record, error)) (map[string]*record, []string, error) {
	staged := make(map[string]*record, len(ops))
	order := make([]string, 0, len(ops))
	for _, op := range ops {
		collection, id, err := SplitDocumentPath(op.Path)
		if err != nil {
			return nil, nil, err
		}
		current, seen := staged[op.Path]
		if !seen {
			current, err = load(op.Path)
			if err != nil {
				return nil, nil, err
			}
			order = append(order, op.Path)
		}
		switch op.Kind {
		case OpDelete:
			staged[op.Path] = nil
		case OpUpdate:
			if current == nil {
				return nil, nil, errors.Wrapf(ErrNotFound, "update %s", op.Path)
			}
			next := &record{
				ID:         id,
				Collection: collection,
				Fields:     mergeFields(current.Fields, op.Fields),
				CreatedAt:  current.CreatedAt,
				UpdatedAt:  now,
			}
			staged[op.Path] = next
		default:
			return nil, nil, errors.Errorf("unknown batch operation %q", op.Kind)
		}
	}
	return staged, order, nil
}

func mergeFields(base, patch Fields) Fields {
	out := cloneFields(base)
	if out == nil {
		out = Fields{}
	}
	for k, v := range stripReserved(patch) {
		out[k] = cloneValue(v)
	}
	return out
}

func stripReserved(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}

func cloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case Fields:
		return cloneFields(t)
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// sortDocuments orders docs ascending by field. Ties (and documents
// missing the field) fall back to creation time, then id.
func sortDocuments(docs []Document, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if c := compareValues(sortValue(docs[i], field), sortValue(docs[j], field)); c != 0 {
			return c < 0
		}
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func sortValue(d Document, field string) interface{} {
	switch field {
	case "", FieldCreatedAt:
		return d.CreatedAt
	case FieldUpdatedAt:
		return d.UpdatedAt
	case FieldID:
		return d.ID
	}
	return d.Fields[field]
}

// compareValues orders nil < numbers < strings < times; other kinds compare equal.
func compareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		ta, tb := a.(time.Time), b.(time.Time)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		}
	}
	return 0
}

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int32, int64, float32, float64, json.Number:
		return 1
	case string:
		return 2
	case time.Time:
		return 3
	}
	return 4
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
