package escrow

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// fakeProgramVersion prefixes fake bytecode so it never looks like printable source.
const fakeProgramVersion = 0x05

// FakeLedger is an in-process ledger for development and tests. Compilation
// hashes the source deterministically, submitted groups are checked for a
// consistent group id, and confirmation arrives after ConfirmAfter polls.
// Like a real node it refuses a transaction id that is pending or confirmed;
// only a group the pool rejected may be sent again.
type FakeLedger struct {
	mu sync.Mutex

	// ConfirmAfter is the number of pending polls before a group confirms.
	ConfirmAfter int
	// Accounts overrides AccountState per address. Unknown addresses are
	// reported as funded and opted into every asset in Assets.
	Accounts map[string]AccountState
	// Assets lists the asset ids reported for unknown accounts.
	Assets []uint64

	CompileErr error
	SubmitErr  error
	PoolError  string
	// NeverConfirm keeps every submission pending.
	NeverConfirm bool

	round        uint64
	polls        map[string]int
	submitted    map[string][][]byte
	confirmed    map[string]uint64
	rejected     map[string]bool
	evicted      map[string]bool
	compileCalls int
	submitCalls  int
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		ConfirmAfter: 1,
		round:        1000,
		polls:        make(map[string]int),
		submitted:    make(map[string][][]byte),
		confirmed:    make(map[string]uint64),
		rejected:     make(map[string]bool),
		evicted:      make(map[string]bool),
	}
}

func (f *FakeLedger) SuggestedParams(context.Context) (types.SuggestedParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gh := sha256.Sum256([]byte("gigescrow-fake-net"))
	return types.SuggestedParams{
		Fee:             0,
		MinFee:          MaxLegFee,
		GenesisID:       "fakenet-v1",
		GenesisHash:     gh[:],
		FirstRoundValid: types.Round(f.round),
		LastRoundValid:  types.Round(f.round + 1000),
	}, nil
}

func (f *FakeLedger) CompileProgram(_ context.Context, source string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compileCalls++
	if f.CompileErr != nil {
		return nil, f.CompileErr
	}
	if !strings.HasPrefix(source, "#pragma version") {
		return nil, fmt.Errorf("1: expected #pragma version")
	}
	sum := sha256.Sum256([]byte(source))
	return append([]byte{fakeProgramVersion}, sum[:]...), nil
}

func (f *FakeLedger) SubmitGroup(_ context.Context, signed [][]byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.SubmitErr != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionRejected, f.SubmitErr)
	}
	if len(signed) == 0 {
		return "", fmt.Errorf("%w: empty group", ErrSubmissionRejected)
	}

	var (
		first types.Transaction
		group types.Digest
	)
	for i, raw := range signed {
		var stx types.SignedTxn
		if err := msgpack.Decode(raw, &stx); err != nil {
			return "", fmt.Errorf("%w: decode transaction %d: %v", ErrSubmissionRejected, i, err)
		}
		if i == 0 {
			first, group = stx.Txn, stx.Txn.Group
			continue
		}
		if stx.Txn.Group != group {
			return "", fmt.Errorf("%w: transaction %d has a different group id", ErrSubmissionRejected, i)
		}
	}

	txID := crypto.GetTxID(first)
	if _, dup := f.submitted[txID]; dup && !f.rejected[txID] {
		return "", fmt.Errorf("%w: transaction already in ledger: %s", ErrSubmissionRejected, txID)
	}
	delete(f.rejected, txID)
	delete(f.polls, txID)
	f.submitted[txID] = signed
	return txID, nil
}

func (f *FakeLedger) PendingConfirmation(_ context.Context, txID string) (Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.submitted[txID]; !ok || f.evicted[txID] {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	if round, ok := f.confirmed[txID]; ok {
		return Confirmation{TxID: txID, ConfirmedRound: round}, nil
	}
	if f.PoolError != "" {
		f.rejected[txID] = true
		return Confirmation{TxID: txID, PoolError: f.PoolError}, nil
	}
	f.polls[txID]++
	if f.NeverConfirm || f.polls[txID] <= f.ConfirmAfter {
		return Confirmation{TxID: txID}, nil
	}
	f.round++
	f.confirmed[txID] = f.round
	return Confirmation{TxID: txID, ConfirmedRound: f.round}, nil
}

// LookupTransaction reports transactions that were confirmed, including
// those dropped from the pending pool by Evict.
func (f *FakeLedger) LookupTransaction(_ context.Context, txID string) (Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	round, ok := f.confirmed[txID]
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	return Confirmation{TxID: txID, ConfirmedRound: round}, nil
}

// Evict drops txID from the pending pool. If the group is still pending it
// is confirmed first, the way an old transaction leaves the pool.
func (f *FakeLedger) Evict(txID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.confirmed[txID]; !ok && f.PoolError == "" {
		f.round++
		f.confirmed[txID] = f.round
	}
	f.evicted[txID] = true
}

func (f *FakeLedger) AccountState(_ context.Context, address string) (AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.Accounts[address]; ok {
		return state, nil
	}
	state := AccountState{Address: address, Balance: 1 << 50}
	for _, id := range f.Assets {
		state.Assets = append(state.Assets, AssetHolding{AssetID: id, Amount: 1})
	}
	return state, nil
}

func (f *FakeLedger) Ping(context.Context) error {
	return nil
}

// Submitted returns the signed group recorded under txID.
func (f *FakeLedger) Submitted(txID string) ([][]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.submitted[txID]
	return group, ok
}

func (f *FakeLedger) CompileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compileCalls
}

func (f *FakeLedger) SubmitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}
