package escrow

import "errors"

// Category classifies a purchase failure for users and for the audit trail.
type Category string

const (
	CategoryInvalidAddress      Category = "InvalidAddress"
	CategoryInvalidAmount       Category = "InvalidAmount"
	CategoryCompilationFailed   Category = "CompilationFailed"
	CategorySignatureDeclined   Category = "SignatureDeclined"
	CategorySubmissionRejected  Category = "SubmissionRejected"
	CategoryConfirmationTimeout Category = "ConfirmationTimeout"
	CategoryInvalidTransition   Category = "InvalidTransition"
	CategoryUnknown             Category = "Unknown"
)

var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrCompilationFailed   = errors.New("program compilation failed")
	ErrSignatureDeclined   = errors.New("signature declined")
	ErrSubmissionRejected  = errors.New("submission rejected")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrInvalidTransition   = errors.New("invalid status transition")
	// ErrTransactionNotFound means the ledger has no record of a transaction
	// id. It carries no category: the outcome is unknown, not failed.
	ErrTransactionNotFound = errors.New("transaction not found")
)

var categories = []struct {
	err      error
	category Category
}{
	{ErrInvalidAddress, CategoryInvalidAddress},
	{ErrInvalidAmount, CategoryInvalidAmount},
	{ErrCompilationFailed, CategoryCompilationFailed},
	{ErrSignatureDeclined, CategorySignatureDeclined},
	{ErrSubmissionRejected, CategorySubmissionRejected},
	{ErrConfirmationTimeout, CategoryConfirmationTimeout},
	{ErrInvalidTransition, CategoryInvalidTransition},
}

// CategoryOf resolves err (or anything it wraps) to a failure category.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.category
		}
	}
	return CategoryUnknown
}

// Recoverable reports whether the user may retry after a failure of this category.
func (c Category) Recoverable() bool {
	switch c {
	case CategorySignatureDeclined, CategorySubmissionRejected, CategoryConfirmationTimeout:
		return true
	default:
		return false
	}
}

// UserMessage is the text shown to a buyer for a failure category.
func UserMessage(c Category) string {
	switch c {
	case CategoryInvalidAddress:
		return "One of the wallet addresses is malformed."
	case CategoryInvalidAmount:
		return "The price or quantity is not valid."
	case CategoryCompilationFailed:
		return "The escrow program could not be prepared. Please contact support."
	case CategorySignatureDeclined:
		return "The payment was not signed. You can try again."
	case CategorySubmissionRejected:
		return "The network rejected the payment. Check your balance and asset opt-in, then retry."
	case CategoryConfirmationTimeout:
		return "The payment was sent but is not confirmed yet. Check its status before retrying."
	case CategoryInvalidTransition:
		return "The purchase is in an unexpected state. Please contact support."
	default:
		return "The purchase failed."
	}
}
