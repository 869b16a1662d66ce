package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gigescrow/internal/store"
)

// Collection holds one record per scoped idempotency key.
const Collection = "idempotency"

// DefaultWindow is how long a completed response is replayed.
const DefaultWindow = 24 * time.Hour

// pendingLease bounds how long an unfinished request blocks its key.
const pendingLease = 10 * time.Minute

var (
	ErrInProgress = errors.New("a request with this idempotency key is in progress")
	ErrKeyReused  = errors.New("idempotency key was used for a different request")
)

const (
	statePending  = "pending"
	stateDone     = "done"
	stateReleased = "released"
)

// Record holds stored response data.
type Record struct {
	State       string    `json:"state"`
	Fingerprint string    `json:"fingerprint"`
	StatusCode  int       `json:"statusCode,omitempty"`
	Response    []byte    `json:"response,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Store keeps idempotency records in a document store. Keys are claimed with
// an insert, so two concurrent requests with one key never both run.
type Store struct {
	docs   store.Store
	window time.Duration
	now    func() time.Time
}

func NewStore(docs store.Store, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{docs: docs, window: window, now: time.Now}
}

// Claim is a reserved key. The holder finishes it with Complete or Release.
type Claim struct {
	s           *Store
	id          string
	fingerprint string
	version     int64
}

// Begin reserves key within scope for a request carrying body. If a response
// was already stored for the same key and body, Begin returns that record
// and no claim. A key still being processed yields ErrInProgress; a key
// seen with a different body yields ErrKeyReused.
func (s *Store) Begin(ctx context.Context, scope, key string, body []byte) (*Claim, *Record, error) {
	id := recordID(scope, key)
	fp := fingerprint(body)
	now := s.now().UTC()
	data, err := json.Marshal(Record{State: statePending, Fingerprint: fp, CreatedAt: now, ExpiresAt: now.Add(pendingLease)})
	if err != nil {
		return nil, nil, err
	}

	doc, err := s.docs.Insert(ctx, Collection, id, data)
	if err == nil {
		return &Claim{s: s, id: id, fingerprint: fp, version: doc.Version}, nil, nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return nil, nil, fmt.Errorf("claim idempotency key: %w", err)
	}

	doc, err = s.docs.Get(ctx, Collection, id)
	if err != nil {
		return nil, nil, fmt.Errorf("read idempotency key: %w", err)
	}
	var existing Record
	if err := json.Unmarshal(doc.Data, &existing); err != nil {
		return nil, nil, fmt.Errorf("decode idempotency record: %w", err)
	}

	if existing.State == stateReleased || now.After(existing.ExpiresAt) {
		doc, err = s.docs.Update(ctx, Collection, id, data, doc.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, nil, ErrInProgress
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reclaim idempotency key: %w", err)
		}
		return &Claim{s: s, id: id, fingerprint: fp, version: doc.Version}, nil, nil
	}
	if existing.Fingerprint != fp {
		return nil, nil, ErrKeyReused
	}
	if existing.State == stateDone {
		return nil, &existing, nil
	}
	return nil, nil, ErrInProgress
}

// Complete stores the response to replay for the claimed key.
func (c *Claim) Complete(ctx context.Context, statusCode int, response []byte) error {
	now := c.s.now().UTC()
	return c.write(ctx, Record{
		State:       stateDone,
		Fingerprint: c.fingerprint,
		StatusCode:  statusCode,
		Response:    append([]byte(nil), response...),
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.s.window),
	})
}

// Release gives the key up so the same request may run again.
func (c *Claim) Release(ctx context.Context) error {
	now := c.s.now().UTC()
	return c.write(ctx, Record{State: stateReleased, Fingerprint: c.fingerprint, CreatedAt: now, ExpiresAt: now})
}

func (c *Claim) write(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	doc, err := c.s.docs.Update(ctx, Collection, c.id, data, c.version)
	if err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	c.version = doc.Version
	return nil
}

func recordID(scope, key string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
