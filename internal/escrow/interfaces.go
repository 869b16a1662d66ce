package escrow

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// ProgramCompiler turns program source into bytecode.
type ProgramCompiler interface {
	CompileProgram(ctx context.Context, source string) ([]byte, error)
}

// ConfirmationSource reports the pool status of a submitted transaction.
// PendingConfirmation fails with ErrTransactionNotFound once the ledger no
// longer tracks txID.
type ConfirmationSource interface {
	PendingConfirmation(ctx context.Context, txID string) (Confirmation, error)
}

// Ledger abstracts the settlement network.
type Ledger interface {
	ProgramCompiler
	ConfirmationSource
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)
	SubmitGroup(ctx context.Context, signed [][]byte) (string, error)
	AccountState(ctx context.Context, address string) (AccountState, error)
}

// Signer is a wallet able to sign the legs of a group it is the sender of.
type Signer interface {
	Connect(ctx context.Context) (string, error)
	// SignTransactions signs group[i] for each i in indexes and returns the
	// encoded signed transactions in the same order.
	SignTransactions(ctx context.Context, group []types.Transaction, indexes []int) ([][]byte, error)
}

// TransactionLookup finds confirmed transactions after the pending pool has
// dropped them. It fails with ErrTransactionNotFound for unknown ids.
type TransactionLookup interface {
	LookupTransaction(ctx context.Context, txID string) (Confirmation, error)
}

// HealthChecker is implemented by ledgers that can report connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Confirmation is the pool view of one transaction. ConfirmedRound is zero
// while the transaction is pending.
type Confirmation struct {
	TxID           string
	ConfirmedRound uint64
	PoolError      string
}

type AssetHolding struct {
	AssetID uint64
	Amount  uint64
}

// AccountState is the balance view of an account.
type AccountState struct {
	Address string
	Balance uint64
	Assets  []AssetHolding
}

// Holds reports whether the account has opted into assetID. The native
// currency (id 0) is always held.
func (a AccountState) Holds(assetID uint64) bool {
	if assetID == 0 {
		return true
	}
	for _, h := range a.Assets {
		if h.AssetID == assetID {
			return true
		}
	}
	return false
}
