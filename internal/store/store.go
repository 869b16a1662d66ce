package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
	ErrAlreadyExists   = errors.New("document already exists")
	ErrInvalidField    = errors.New("invalid field name")
)

// Document is a JSON body plus the bookkeeping the store maintains.
// Version starts at 1 and increases by one on every update.
type Document struct {
	ID        string
	Version   int64
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter matches documents whose top-level field equals Value, compared as text.
type Filter struct {
	Field string
	Value string
}

// Order sorts query results by a top-level field. An empty Field means
// creation order.
type Order struct {
	Field string
	Desc  bool
}

// Store persists documents grouped into collections.
type Store interface {
	Create(ctx context.Context, collection string, data json.RawMessage) (Document, error)
	// Insert creates a document under a caller-chosen id. It fails with
	// ErrAlreadyExists when the id is taken, so exactly one of several
	// concurrent inserts of the same id succeeds.
	Insert(ctx context.Context, collection, id string, data json.RawMessage) (Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update replaces the body only if the stored version equals
	// expectedVersion, otherwise it fails with ErrVersionConflict.
	Update(ctx context.Context, collection, id string, data json.RawMessage, expectedVersion int64) (Document, error)
	Query(ctx context.Context, collection string, filters []Filter, order Order) ([]Document, error)
	Ping(ctx context.Context) error
	Close() error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func checkFields(filters []Filter, order Order) error {
	for _, f := range filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
		}
	}
	if order.Field != "" && !fieldPattern.MatchString(order.Field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, order.Field)
	}
	return nil
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("document id is empty")
	}
	return nil
}

func checkJSON(data json.RawMessage) error {
	if !json.Valid(data) {
		return errors.New("document body is not valid JSON")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("document body must be a JSON object")
	}
	return nil
}

// fieldText renders a top-level field the way SQL backends compare it:
// strings unquoted, numbers in their literal form, absent fields empty.
func fieldText(data json.RawMessage, field string) string {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return ""
	}
	switch v := body[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

// filterAndSort applies filters and ordering in process for backends without
// a query language.
func filterAndSort(docs []Document, filters []Filter, order Order) []Document {
	out := docs[:0:0]
	for _, d := range docs {
		match := true
		for _, f := range filters {
			if fieldText(d.Data, f.Field) != f.Value {
				match = false
				break
			}
		}
		if match {
			out = append(out, d)
		}
	}
	less := func(i, j int) bool {
		if order.Field == "" {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return fieldText(out[i].Data, order.Field) < fieldText(out[j].Data, order.Field)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if order.Desc {
			return less(j, i)
		}
		return less(i, j)
	})
	return out
}
