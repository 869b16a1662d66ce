package escrow

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// AlgodClient implements Ledger against an algod node. With an indexer
// configured it also implements TransactionLookup.
type AlgodClient struct {
	client  *algod.Client
	indexer *indexer.Client
}

type AlgodClientConfig struct {
	URL          string
	Token        string
	IndexerURL   string
	IndexerToken string
}

func NewAlgodClient(cfg AlgodClientConfig) (*AlgodClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("algod url is required")
	}
	cli, err := algod.MakeClient(cfg.URL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("algod client: %w", err)
	}
	c := &AlgodClient{client: cli}
	if cfg.IndexerURL != "" {
		c.indexer, err = indexer.MakeClient(cfg.IndexerURL, cfg.IndexerToken)
		if err != nil {
			return nil, fmt.Errorf("indexer client: %w", err)
		}
	}
	return c, nil
}

func (c *AlgodClient) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	sp, err := c.client.SuggestedParams().Do(ctx)
	if err != nil {
		return types.SuggestedParams{}, fmt.Errorf("suggested params: %w", err)
	}
	if sp.FirstRoundValid == 0 || sp.LastRoundValid == 0 {
		return types.SuggestedParams{}, fmt.Errorf("suggested params: empty validity window")
	}
	return sp, nil
}

func (c *AlgodClient) CompileProgram(ctx context.Context, source string) ([]byte, error) {
	resp, err := c.client.TealCompile([]byte(source)).Do(ctx)
	if err != nil {
		return nil, err
	}
	program, err := base64.StdEncoding.DecodeString(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode compiled program: %w", err)
	}
	return program, nil
}

// SubmitGroup sends the concatenated signed group and returns the id of the
// first transaction.
func (c *AlgodClient) SubmitGroup(ctx context.Context, signed [][]byte) (string, error) {
	txID, err := c.client.SendRawTransaction(bytes.Join(signed, nil)).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}
	return txID, nil
}

func (c *AlgodClient) PendingConfirmation(ctx context.Context, txID string) (Confirmation, error) {
	info, _, err := c.client.PendingTransactionInformation(txID).Do(ctx)
	if isNotFound(err) {
		return Confirmation{}, fmt.Errorf("%w: %s is no longer pending: %v", ErrTransactionNotFound, txID, err)
	}
	if err != nil {
		return Confirmation{}, fmt.Errorf("pending transaction %s: %w", txID, err)
	}
	return Confirmation{
		TxID:           txID,
		ConfirmedRound: info.ConfirmedRound,
		PoolError:      info.PoolError,
	}, nil
}

func (c *AlgodClient) AccountState(ctx context.Context, address string) (AccountState, error) {
	acct, err := c.client.AccountInformation(address).Do(ctx)
	if err != nil {
		return AccountState{}, fmt.Errorf("account %s: %w", address, err)
	}
	state := AccountState{Address: address, Balance: acct.Amount}
	for _, h := range acct.Assets {
		state.Assets = append(state.Assets, AssetHolding{AssetID: h.AssetId, Amount: h.Amount})
	}
	return state, nil
}

func (c *AlgodClient) Ping(ctx context.Context) error {
	return c.client.HealthCheck().Do(ctx)
}

// LookupTransaction finds a confirmed transaction through the indexer.
func (c *AlgodClient) LookupTransaction(ctx context.Context, txID string) (Confirmation, error) {
	if c.indexer == nil {
		return Confirmation{}, fmt.Errorf("%w: %s: no indexer configured", ErrTransactionNotFound, txID)
	}
	resp, err := c.indexer.LookupTransaction(txID).Do(ctx)
	if isNotFound(err) {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	if err != nil {
		return Confirmation{}, fmt.Errorf("lookup transaction %s: %w", txID, err)
	}
	return Confirmation{TxID: txID, ConfirmedRound: resp.Transaction.ConfirmedRound}, nil
}

// isNotFound matches the SDK's HTTP 404 errors, which are only
// distinguishable by message.
func isNotFound(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "HTTP 404")
}
