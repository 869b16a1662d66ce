package catalog

import (
	"context"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigescrow/internal/escrow"
	"gigescrow/internal/store"
)

func testAddress(b byte) string {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a.String()
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore())

	item, err := repo.Create(ctx, Item{
		Title:           "  Landing page audit ",
		SellerAddress:   testAddress(2),
		AssetID:         31566704,
		AssetAmount:     1,
		PriceMinorUnits: 25000000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Landing page audit", item.Title)
	assert.False(t, item.CreatedAt.IsZero())

	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, got)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore())

	_, err := repo.Create(ctx, Item{Title: "x", SellerAddress: "SELLER", AssetAmount: 1, PriceMinorUnits: 1})
	assert.ErrorIs(t, err, escrow.ErrInvalidAddress)

	_, err = repo.Create(ctx, Item{Title: "x", SellerAddress: testAddress(2), AssetAmount: 1})
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)

	_, err = repo.Create(ctx, Item{SellerAddress: testAddress(2), AssetAmount: 1, PriceMinorUnits: 1})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestListBySeller(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore())

	for _, title := range []string{"A", "B"} {
		_, err := repo.Create(ctx, Item{Title: title, SellerAddress: testAddress(2), AssetAmount: 1, PriceMinorUnits: 10})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, Item{Title: "C", SellerAddress: testAddress(4), AssetAmount: 1, PriceMinorUnits: 10})
	require.NoError(t, err)

	items, err := repo.ListBySeller(ctx, testAddress(2))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Title)
	assert.Equal(t, "B", items[1].Title)
}
