package escrow

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// KeySigner signs with a locally held account key. It stands in for a
// wallet in server-side and development deployments.
type KeySigner struct {
	account crypto.Account
}

func NewKeySigner(account crypto.Account) *KeySigner {
	return &KeySigner{account: account}
}

// NewKeySignerFromMnemonic restores the account behind a 25-word mnemonic.
func NewKeySignerFromMnemonic(phrase string) (*KeySigner, error) {
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, fmt.Errorf("parse mnemonic: %w", err)
	}
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("restore account: %w", err)
	}
	return &KeySigner{account: account}, nil
}

func (s *KeySigner) Address() string {
	return s.account.Address.String()
}

func (s *KeySigner) Connect(context.Context) (string, error) {
	return s.Address(), nil
}

func (s *KeySigner) SignTransactions(ctx context.Context, group []types.Transaction, indexes []int) ([][]byte, error) {
	out := make([][]byte, 0, len(indexes))
	for _, i := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignatureDeclined, err)
		}
		if i < 0 || i >= len(group) {
			return nil, fmt.Errorf("sign index %d out of range", i)
		}
		if group[i].Sender != s.account.Address {
			return nil, fmt.Errorf("%w: transaction %d is not sent by %s", ErrSignatureDeclined, i, s.Address())
		}
		_, stx, err := crypto.SignTransaction(s.account.PrivateKey, group[i])
		if err != nil {
			return nil, fmt.Errorf("sign transaction %d: %w", i, err)
		}
		out = append(out, stx)
	}
	return out, nil
}
