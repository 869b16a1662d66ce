package purchase

import (
	"errors"
	"fmt"

	"gigescrow/internal/escrow"
)

// ErrNotRetryable is returned by Retry for records that are not failed, or
// failed for a reason a second attempt cannot fix.
var ErrNotRetryable = errors.New("escrow is not retryable")

// Failure is a purchase step error with its category. EscrowID is empty when
// the flow stopped before a record was created. TxID is set when the group
// reached the network even though the attempt failed.
type Failure struct {
	EscrowID string
	TxID     string
	Category escrow.Category
	Err      error
}

func (f *Failure) Error() string {
	switch {
	case f.EscrowID == "":
		return fmt.Sprintf("purchase failed (%s): %v", f.Category, f.Err)
	case f.TxID != "":
		return fmt.Sprintf("purchase %s failed after submitting %s (%s): %v", f.EscrowID, f.TxID, f.Category, f.Err)
	default:
		return fmt.Sprintf("purchase %s failed (%s): %v", f.EscrowID, f.Category, f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserMessage is the text to show the buyer.
func (f *Failure) UserMessage() string {
	return escrow.UserMessage(f.Category)
}

func newFailure(escrowID string, err error) *Failure {
	return &Failure{EscrowID: escrowID, Category: escrow.CategoryOf(err), Err: err}
}

// ensure wraps err with sentinel unless it already carries a category.
func ensure(err, sentinel error) error {
	if escrow.CategoryOf(err) != escrow.CategoryUnknown {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
