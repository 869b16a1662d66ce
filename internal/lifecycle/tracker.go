package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gigescrow/internal/escrow"
	"gigescrow/internal/logger"
	"gigescrow/internal/store"
)

// Collection is the store collection holding escrow agreements.
const Collection = "escrows"

// ErrTransitionSuperseded is returned when another writer already moved the
// record, or the record is already in the requested state. Callers treat it
// as a no-op.
var ErrTransitionSuperseded = errors.New("transition superseded")

// retryNamespace seeds RetryID.
var retryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gigescrow:retry"))

// RetryID is the id of the one agreement allowed to retry failedID.
func RetryID(failedID string) string {
	return uuid.NewSHA1(retryNamespace, []byte(failedID)).String()
}

// Observer is notified after every committed transition.
type Observer func(from, to Status)

// Tracker is the only writer of escrow agreements after creation. Every
// status change is a conditional write against the version that was read.
type Tracker struct {
	store    store.Store
	observer Observer
	log      *logrus.Entry
}

func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s, log: logger.NewSublogger("lifecycle")}
}

// OnTransition registers fn as the transition observer.
func (t *Tracker) OnTransition(fn Observer) {
	t.observer = fn
}

// Create opens an agreement in StatusInitialized.
func (t *Tracker) Create(ctx context.Context, d Draft) (EscrowAgreement, error) {
	return t.create(ctx, "", d)
}

// ClaimRetry opens the retry agreement of the failed record failedID. The
// retry id is derived from failedID, so when two callers race only one
// insert succeeds; the other gets ErrTransitionSuperseded together with the
// winner's agreement.
func (t *Tracker) ClaimRetry(ctx context.Context, failedID string) (EscrowAgreement, error) {
	prev, err := t.Get(ctx, failedID)
	if err != nil {
		return EscrowAgreement{}, err
	}
	if prev.Status != StatusFailed {
		return EscrowAgreement{}, fmt.Errorf("%w: %s is %s, only failed agreements are retried", escrow.ErrInvalidTransition, failedID, prev.Status)
	}

	id := RetryID(failedID)
	a, err := t.create(ctx, id, Draft{
		ItemID:          prev.ItemID,
		ItemTitle:       prev.ItemTitle,
		BuyerAddress:    prev.BuyerAddress,
		SellerAddress:   prev.SellerAddress,
		AssetID:         prev.AssetID,
		AssetAmount:     prev.AssetAmount,
		PriceMinorUnits: prev.PriceMinorUnits,
		CompiledProgram: prev.CompiledProgram,
		RetryOf:         prev.ID,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, getErr := t.Get(ctx, id)
		if getErr != nil {
			return EscrowAgreement{}, getErr
		}
		t.log.WithFields(logrus.Fields{"escrow_id": id, "retry_of": failedID}).Debug("Retry already claimed")
		return existing, ErrTransitionSuperseded
	}
	if err != nil {
		return EscrowAgreement{}, err
	}
	t.linkRetry(ctx, prev, id)
	return a, nil
}

// linkRetry records retryID on the failed agreement. The retry agreement
// already carries the reverse link, so a lost write is only logged.
func (t *Tracker) linkRetry(ctx context.Context, prev EscrowAgreement, retryID string) {
	prev.RetriedBy = retryID
	data, err := json.Marshal(prev)
	if err == nil {
		_, err = t.store.Update(ctx, Collection, prev.ID, data, prev.Version)
	}
	if err != nil {
		t.log.WithFields(logrus.Fields{"escrow_id": prev.ID, "retried_by": retryID}).WithError(err).Warn("Could not link retry")
	}
}

func (t *Tracker) create(ctx context.Context, id string, d Draft) (EscrowAgreement, error) {
	if !escrow.ValidateAddress(d.BuyerAddress) {
		return EscrowAgreement{}, fmt.Errorf("%w: buyer %q", escrow.ErrInvalidAddress, d.BuyerAddress)
	}
	trade := escrow.Trade{
		AssetID:         d.AssetID,
		SellerAddress:   d.SellerAddress,
		PriceMinorUnits: d.PriceMinorUnits,
		AssetAmount:     d.AssetAmount,
	}
	if err := trade.Validate(); err != nil {
		return EscrowAgreement{}, err
	}
	if len(d.CompiledProgram) == 0 {
		return EscrowAgreement{}, fmt.Errorf("%w: empty program", escrow.ErrCompilationFailed)
	}
	escrowAddr, err := escrow.ProgramAddress(d.CompiledProgram)
	if err != nil {
		return EscrowAgreement{}, err
	}
	if d.BuyerAddress == d.SellerAddress || d.BuyerAddress == escrowAddr || d.SellerAddress == escrowAddr {
		return EscrowAgreement{}, fmt.Errorf("%w: buyer, seller and escrow must be distinct", escrow.ErrInvalidAddress)
	}

	a := EscrowAgreement{
		ItemID:          d.ItemID,
		ItemTitle:       d.ItemTitle,
		BuyerAddress:    d.BuyerAddress,
		SellerAddress:   d.SellerAddress,
		EscrowAddress:   escrowAddr,
		AssetID:         d.AssetID,
		AssetAmount:     d.AssetAmount,
		PriceMinorUnits: d.PriceMinorUnits,
		Status:          StatusInitialized,
		CompiledProgram: append([]byte(nil), d.CompiledProgram...),
		RetryOf:         d.RetryOf,
	}
	data, err := json.Marshal(a)
	if err != nil {
		return EscrowAgreement{}, fmt.Errorf("encode agreement: %w", err)
	}
	var doc store.Document
	if id == "" {
		doc, err = t.store.Create(ctx, Collection, data)
	} else {
		doc, err = t.store.Insert(ctx, Collection, id, data)
	}
	if err != nil {
		return EscrowAgreement{}, fmt.Errorf("create agreement: %w", err)
	}
	t.log.WithFields(logrus.Fields{"escrow_id": doc.ID, "escrow_address": escrowAddr}).Debug("Agreement initialized")
	return fromDocument(doc)
}

func (t *Tracker) Get(ctx context.Context, id string) (EscrowAgreement, error) {
	doc, err := t.store.Get(ctx, Collection, id)
	if err != nil {
		return EscrowAgreement{}, fmt.Errorf("get agreement %s: %w", id, err)
	}
	return fromDocument(doc)
}

// Transition moves agreement id to status to, recording upd. It fails with
// escrow.ErrInvalidTransition when to is not reachable from the current
// state or a guard is not met, and with ErrTransitionSuperseded (returning
// the current record) when another writer got there first.
func (t *Tracker) Transition(ctx context.Context, id string, to Status, upd Update) (EscrowAgreement, error) {
	current, err := t.Get(ctx, id)
	if err != nil {
		return EscrowAgreement{}, err
	}
	if current.Status == to {
		return current, ErrTransitionSuperseded
	}
	if !CanTransition(current.Status, to) {
		return current, fmt.Errorf("%w: %s -> %s", escrow.ErrInvalidTransition, current.Status, to)
	}
	if err := checkGuard(to, upd); err != nil {
		return current, err
	}

	next := apply(current, to, upd)
	data, err := json.Marshal(next)
	if err != nil {
		return current, fmt.Errorf("encode agreement: %w", err)
	}
	doc, err := t.store.Update(ctx, Collection, id, data, current.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		latest, getErr := t.Get(ctx, id)
		if getErr != nil {
			return current, getErr
		}
		t.log.WithFields(logrus.Fields{"escrow_id": id, "to": to, "status": latest.Status}).Debug("Transition lost race")
		return latest, ErrTransitionSuperseded
	}
	if err != nil {
		return current, fmt.Errorf("update agreement %s: %w", id, err)
	}

	t.log.WithFields(logrus.Fields{"escrow_id": id, "from": current.Status, "to": to}).Debug("Transition committed")
	if t.observer != nil {
		t.observer(current.Status, to)
	}
	return fromDocument(doc)
}

// Fail moves id to StatusFailed, recording the category and message of cause.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) (EscrowAgreement, error) {
	return t.Transition(ctx, id, StatusFailed, Update{
		FailureCategory: escrow.CategoryOf(cause),
		FailureReason:   cause.Error(),
	})
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	BuyerAddress string
	Status       Status
}

// List returns matching agreements in creation order.
func (t *Tracker) List(ctx context.Context, f ListFilter) ([]EscrowAgreement, error) {
	var filters []store.Filter
	if f.BuyerAddress != "" {
		filters = append(filters, store.Filter{Field: "buyerAddress", Value: f.BuyerAddress})
	}
	if f.Status != "" {
		filters = append(filters, store.Filter{Field: "status", Value: string(f.Status)})
	}
	docs, err := t.store.Query(ctx, Collection, filters, store.Order{})
	if err != nil {
		return nil, fmt.Errorf("query agreements: %w", err)
	}
	out := make([]EscrowAgreement, 0, len(docs))
	for _, doc := range docs {
		a, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *Tracker) ListByBuyer(ctx context.Context, buyer string) ([]EscrowAgreement, error) {
	return t.List(ctx, ListFilter{BuyerAddress: buyer})
}

func (t *Tracker) ListByStatus(ctx context.Context, status Status) ([]EscrowAgreement, error) {
	return t.List(ctx, ListFilter{Status: status})
}

func checkGuard(to Status, upd Update) error {
	switch to {
	case StatusFunded:
		if upd.GroupID == "" || upd.PendingTxID == "" {
			return fmt.Errorf("%w: funded requires a group id and pending transaction id", escrow.ErrInvalidTransition)
		}
	case StatusConfirmed:
		if upd.TransactionID == "" {
			return fmt.Errorf("%w: confirmed requires a transaction id", escrow.ErrInvalidTransition)
		}
	case StatusFailed:
		if upd.FailureCategory == "" {
			return fmt.Errorf("%w: failed requires a failure category", escrow.ErrInvalidTransition)
		}
	}
	return nil
}

func apply(a EscrowAgreement, to Status, upd Update) EscrowAgreement {
	a.Status = to
	switch to {
	case StatusFunded:
		a.GroupID = upd.GroupID
		a.PendingTxID = upd.PendingTxID
	case StatusConfirmed:
		a.TransactionID = upd.TransactionID
		a.ConfirmedRound = upd.ConfirmedRound
	case StatusFailed:
		a.FailureCategory = upd.FailureCategory
		a.FailureReason = upd.FailureReason
	}
	return a
}

func fromDocument(doc store.Document) (EscrowAgreement, error) {
	var a EscrowAgreement
	if err := json.Unmarshal(doc.Data, &a); err != nil {
		return EscrowAgreement{}, fmt.Errorf("decode agreement %s: %w", doc.ID, err)
	}
	a.ID = doc.ID
	a.Version = doc.Version
	a.CreatedAt = doc.CreatedAt
	a.UpdatedAt = doc.UpdatedAt
	return a, nil
}
