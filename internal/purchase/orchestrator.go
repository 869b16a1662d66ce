package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gigescrow/internal/catalog"
	"gigescrow/internal/escrow"
	"gigescrow/internal/lifecycle"
	"gigescrow/internal/logger"
)

// Step names a stage of the purchase pipeline for progress reporting.
type Step string

const (
	StepValidate   Step = "validate"
	StepConnect    Step = "connect"
	StepCompile    Step = "compile"
	StepInitialize Step = "initialize"
	StepBuild      Step = "build"
	StepPreflight  Step = "preflight"
	StepSign       Step = "sign"
	StepSubmit     Step = "submit"
	StepConfirm    Step = "confirm"
	StepDone       Step = "done"
)

// ProgressFunc receives every step as it starts. escrowID is empty until
// the record exists.
type ProgressFunc func(escrowID string, step Step)

type Options struct {
	Confirmation escrow.ConfirmationPolicy
	// FeeReserve is the per-leg fee the buyer must be able to cover on top of
	// the price. Defaults to escrow.MaxLegFee.
	FeeReserve uint64
	Progress   ProgressFunc
	// ConfirmationObserver receives how long each confirmation wait took.
	ConfirmationObserver func(wait time.Duration, err error)
}

// Request is one purchase attempt. BuyerAddress may be empty, in which case
// the signer is asked to connect and supply it.
type Request struct {
	ItemID          string
	ItemTitle       string
	BuyerAddress    string
	SellerAddress   string
	AssetID         uint64
	AssetAmount     uint64
	PriceMinorUnits uint64
}

func (r Request) Trade() escrow.Trade {
	return escrow.Trade{
		AssetID:         r.AssetID,
		SellerAddress:   r.SellerAddress,
		PriceMinorUnits: r.PriceMinorUnits,
		AssetAmount:     r.AssetAmount,
	}
}

// Orchestrator runs purchases end to end: render, compile, record, group,
// sign, submit and confirm. It never resubmits on its own; a failed attempt
// is retried only through Retry.
type Orchestrator struct {
	ledger  escrow.Ledger
	signer  escrow.Signer
	tracker *lifecycle.Tracker
	items   *catalog.Repository
	opts    Options
	log     *logrus.Entry
}

func New(ledger escrow.Ledger, signer escrow.Signer, tracker *lifecycle.Tracker, items *catalog.Repository, opts Options) *Orchestrator {
	if opts.FeeReserve == 0 {
		opts.FeeReserve = escrow.MaxLegFee
	}
	return &Orchestrator{
		ledger:  ledger,
		signer:  signer,
		tracker: tracker,
		items:   items,
		opts:    opts,
		log:     logger.NewSublogger("purchase"),
	}
}

// Preview renders and compiles the program for t without recording anything.
func (o *Orchestrator) Preview(ctx context.Context, t escrow.Trade) (escrow.Program, error) {
	return escrow.RenderAndCompile(ctx, o.ledger, t)
}

// PurchaseItem buys a catalog item.
func (o *Orchestrator) PurchaseItem(ctx context.Context, itemID, buyer string) (lifecycle.EscrowAgreement, error) {
	item, err := o.items.Get(ctx, itemID)
	if err != nil {
		return lifecycle.EscrowAgreement{}, err
	}
	return o.Purchase(ctx, Request{
		ItemID:          item.ID,
		ItemTitle:       item.Title,
		BuyerAddress:    buyer,
		SellerAddress:   item.SellerAddress,
		AssetID:         item.AssetID,
		AssetAmount:     item.AssetAmount,
		PriceMinorUnits: item.PriceMinorUnits,
	})
}

// Purchase runs one attempt. On failure the returned error is a *Failure
// and, once a record exists, the record is moved to failed. A confirmation
// timeout is the exception: the record stays funded and the returned
// agreement is still valid, to be settled later by Reconcile.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (lifecycle.EscrowAgreement, error) {
	req.BuyerAddress = strings.TrimSpace(req.BuyerAddress)
	req.SellerAddress = strings.TrimSpace(req.SellerAddress)
	log := o.log.WithField("item_id", req.ItemID)

	if req.BuyerAddress == "" {
		o.progress("", StepConnect)
		addr, err := o.signer.Connect(ctx)
		if err != nil {
			return lifecycle.EscrowAgreement{}, newFailure("", ensure(err, escrow.ErrSignatureDeclined))
		}
		req.BuyerAddress = addr
	}

	o.progress("", StepValidate)
	if err := validateRequest(req); err != nil {
		log.WithError(err).Warn("Purchase rejected")
		return lifecycle.EscrowAgreement{}, newFailure("", err)
	}

	o.progress("", StepCompile)
	program, err := escrow.RenderAndCompile(ctx, o.ledger, req.Trade())
	if err != nil {
		log.WithError(err).Error("Escrow program did not compile")
		return lifecycle.EscrowAgreement{}, newFailure("", err)
	}

	o.progress("", StepInitialize)
	a, err := o.tracker.Create(ctx, lifecycle.Draft{
		ItemID:          req.ItemID,
		ItemTitle:       req.ItemTitle,
		BuyerAddress:    req.BuyerAddress,
		SellerAddress:   req.SellerAddress,
		AssetID:         req.AssetID,
		AssetAmount:     req.AssetAmount,
		PriceMinorUnits: req.PriceMinorUnits,
		CompiledProgram: program.Bytecode,
	})
	if err != nil {
		return lifecycle.EscrowAgreement{}, newFailure("", err)
	}
	return o.settle(ctx, a)
}

// Retry opens a new attempt for a failed record, reusing its compiled program
// and restarting from group building. The failed record only gains a link to
// the new attempt. A failed record is retried at most once: later callers get
// the attempt that won the claim, without signing or submitting anything.
func (o *Orchestrator) Retry(ctx context.Context, id string) (lifecycle.EscrowAgreement, error) {
	prev, err := o.tracker.Get(ctx, id)
	if err != nil {
		return lifecycle.EscrowAgreement{}, err
	}
	if prev.Status != lifecycle.StatusFailed || !prev.FailureCategory.Recoverable() {
		return prev, fmt.Errorf("%w: %s is %s (%s)", ErrNotRetryable, id, prev.Status, prev.FailureCategory)
	}

	a, err := o.tracker.ClaimRetry(ctx, prev.ID)
	if errors.Is(err, lifecycle.ErrTransitionSuperseded) {
		o.log.WithFields(logrus.Fields{"escrow_id": a.ID, "retry_of": prev.ID}).Info("Retry already in progress")
		return a, nil
	}
	if err != nil {
		return lifecycle.EscrowAgreement{}, newFailure("", err)
	}
	o.log.WithFields(logrus.Fields{"escrow_id": a.ID, "retry_of": prev.ID}).Info("Retrying purchase")
	return o.settle(ctx, a)
}

// Reconcile checks a funded record once more against the ledger and settles
// it when the outcome is known. Records in any other state are returned as is.
func (o *Orchestrator) Reconcile(ctx context.Context, id string) (lifecycle.EscrowAgreement, error) {
	a, err := o.tracker.Get(ctx, id)
	if err != nil {
		return lifecycle.EscrowAgreement{}, err
	}
	if a.Status != lifecycle.StatusFunded {
		return a, nil
	}

	c, err := o.ledger.PendingConfirmation(ctx, a.PendingTxID)
	if errors.Is(err, escrow.ErrTransactionNotFound) {
		c, err = o.lookup(ctx, a.PendingTxID)
	}
	if err != nil {
		return a, fmt.Errorf("check %s: %w", a.PendingTxID, err)
	}
	switch {
	case c.PoolError != "":
		return o.fail(ctx, a, fmt.Errorf("%w: %s", escrow.ErrSubmissionRejected, c.PoolError))
	case c.ConfirmedRound == 0:
		return a, nil
	}
	return o.confirm(ctx, a, c)
}

func (o *Orchestrator) settle(ctx context.Context, a lifecycle.EscrowAgreement) (lifecycle.EscrowAgreement, error) {
	log := o.log.WithFields(logrus.Fields{"escrow_id": a.ID, "item_id": a.ItemID})

	o.progress(a.ID, StepBuild)
	sp, err := o.ledger.SuggestedParams(ctx)
	if err != nil {
		return o.fail(ctx, a, ensure(err, escrow.ErrSubmissionRejected))
	}
	ex, err := escrow.BuildExchange(a.ExchangeParams(), sp)
	if err != nil {
		return o.fail(ctx, a, err)
	}

	o.progress(a.ID, StepPreflight)
	if err := o.preflight(ctx, a); err != nil {
		return o.fail(ctx, a, err)
	}

	o.progress(a.ID, StepSign)
	group := ex.Transactions()
	signed, err := o.signer.SignTransactions(ctx, group, []int{escrow.PaymentIndex})
	if err != nil {
		return o.fail(ctx, a, ensure(err, escrow.ErrSignatureDeclined))
	}
	if len(signed) != 1 {
		return o.fail(ctx, a, fmt.Errorf("%w: signer returned %d transactions", escrow.ErrSignatureDeclined, len(signed)))
	}
	transfer, err := escrow.SignWithProgram(group[escrow.AssetTransferIndex], a.CompiledProgram)
	if err != nil {
		return o.fail(ctx, a, err)
	}

	o.progress(a.ID, StepSubmit)
	txID, err := o.ledger.SubmitGroup(ctx, [][]byte{signed[0], transfer})
	if err != nil {
		return o.fail(ctx, a, ensure(err, escrow.ErrSubmissionRejected))
	}
	log = log.WithFields(logrus.Fields{"tx_id": txID, "group_id": ex.GroupIDString()})
	log.Info("Group submitted")

	funded, err := o.markFunded(ctx, a.ID, lifecycle.Update{GroupID: ex.GroupIDString(), PendingTxID: txID})
	if errors.Is(err, lifecycle.ErrTransitionSuperseded) {
		log.Info("Funding already recorded by another attempt")
		return funded, nil
	}
	if err != nil {
		log.WithError(err).Error("Submitted group is not recorded on the agreement")
		f := newFailure(a.ID, err)
		f.TxID = txID
		return a, f
	}
	a = funded

	o.progress(a.ID, StepConfirm)
	started := time.Now()
	c, err := escrow.WaitForConfirmation(ctx, o.ledger, txID, o.opts.Confirmation)
	if o.opts.ConfirmationObserver != nil {
		o.opts.ConfirmationObserver(time.Since(started), err)
	}
	if errors.Is(err, escrow.ErrConfirmationTimeout) {
		log.WithError(err).Warn("Confirmation still pending")
		return a, newFailure(a.ID, err)
	}
	if err != nil {
		return o.fail(ctx, a, err)
	}
	return o.confirm(ctx, a, c)
}

// markFunded records a submitted group. The group is already on the network
// at this point, so a failed write is repeated once on a context that
// outlives the caller.
func (o *Orchestrator) markFunded(ctx context.Context, id string, upd lifecycle.Update) (lifecycle.EscrowAgreement, error) {
	a, err := o.tracker.Transition(ctx, id, lifecycle.StatusFunded, upd)
	if err == nil || errors.Is(err, lifecycle.ErrTransitionSuperseded) || errors.Is(err, escrow.ErrInvalidTransition) {
		return a, err
	}
	o.log.WithFields(logrus.Fields{"escrow_id": id, "tx_id": upd.PendingTxID}).WithError(err).Warn("Recording funded state failed, repeating")
	return o.tracker.Transition(context.WithoutCancel(ctx), id, lifecycle.StatusFunded, upd)
}

// lookup asks the ledger's transaction history about txID once the pending
// pool has forgotten it.
func (o *Orchestrator) lookup(ctx context.Context, txID string) (escrow.Confirmation, error) {
	history, ok := o.ledger.(escrow.TransactionLookup)
	if !ok {
		return escrow.Confirmation{}, fmt.Errorf("%w: no transaction history configured", escrow.ErrTransactionNotFound)
	}
	return history.LookupTransaction(ctx, txID)
}

func (o *Orchestrator) confirm(ctx context.Context, a lifecycle.EscrowAgreement, c escrow.Confirmation) (lifecycle.EscrowAgreement, error) {
	txID := c.TxID
	if txID == "" {
		txID = a.PendingTxID
	}
	confirmed, err := o.tracker.Transition(ctx, a.ID, lifecycle.StatusConfirmed, lifecycle.Update{
		TransactionID:  txID,
		ConfirmedRound: c.ConfirmedRound,
	})
	if errors.Is(err, lifecycle.ErrTransitionSuperseded) {
		return confirmed, nil
	}
	if err != nil {
		return a, newFailure(a.ID, err)
	}
	o.progress(a.ID, StepDone)
	o.log.WithFields(logrus.Fields{"escrow_id": a.ID, "tx_id": txID, "round": c.ConfirmedRound}).Info("Purchase confirmed")
	return confirmed, nil
}

// preflight checks the buyer can receive the asset and cover price and fees
// before the wallet is asked to sign anything.
func (o *Orchestrator) preflight(ctx context.Context, a lifecycle.EscrowAgreement) error {
	state, err := o.ledger.AccountState(ctx, a.BuyerAddress)
	if err != nil {
		return ensure(err, escrow.ErrSubmissionRejected)
	}
	if !state.Holds(a.AssetID) {
		return fmt.Errorf("%w: buyer has not opted into asset %d", escrow.ErrSubmissionRejected, a.AssetID)
	}
	need := a.PriceMinorUnits + 2*o.opts.FeeReserve
	if state.Balance < need {
		return fmt.Errorf("%w: buyer balance %d below required %d", escrow.ErrSubmissionRejected, state.Balance, need)
	}
	return nil
}

// fail records cause on a and returns it as a *Failure. The record is written
// even when ctx was cancelled so an abandoned attempt stays auditable.
func (o *Orchestrator) fail(ctx context.Context, a lifecycle.EscrowAgreement, cause error) (lifecycle.EscrowAgreement, error) {
	f := newFailure(a.ID, cause)
	o.log.WithFields(logrus.Fields{"escrow_id": a.ID, "category": f.Category}).WithError(cause).Warn("Purchase failed")

	failed, err := o.tracker.Fail(context.WithoutCancel(ctx), a.ID, cause)
	if err != nil && !errors.Is(err, lifecycle.ErrTransitionSuperseded) {
		o.log.WithField("escrow_id", a.ID).WithError(err).Error("Failed to record failure")
		return a, f
	}
	return failed, f
}

func (o *Orchestrator) progress(escrowID string, step Step) {
	if o.opts.Progress != nil {
		o.opts.Progress(escrowID, step)
	}
}

func validateRequest(req Request) error {
	if !escrow.ValidateAddress(req.BuyerAddress) {
		return fmt.Errorf("%w: buyer %q", escrow.ErrInvalidAddress, req.BuyerAddress)
	}
	if err := req.Trade().Validate(); err != nil {
		return err
	}
	if req.BuyerAddress == req.SellerAddress {
		return fmt.Errorf("%w: buyer and seller are the same account", escrow.ErrInvalidAddress)
	}
	return nil
}
