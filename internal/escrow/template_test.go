package escrow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesTrade(t *testing.T) {
	seller := testAddress(2)
	src, err := Render(Trade{AssetID: 0, SellerAddress: seller, PriceMinorUnits: 500_000_000, AssetAmount: 1})
	require.NoError(t, err)

	assert.Contains(t, src, "int 500000000")
	assert.Contains(t, src, "addr "+seller)
	assert.Contains(t, src, "gtxn 1 XferAsset\nint 0\n")
	assert.Contains(t, src, "gtxn 1 AssetAmount\nint 1\n")
	assert.NotContains(t, src, "__")
	assert.True(t, strings.HasPrefix(src, "#pragma version 5\n"))
}

func TestRenderIsDeterministic(t *testing.T) {
	trade := Trade{AssetID: 42, SellerAddress: testAddress(3), PriceMinorUnits: 1_000, AssetAmount: 3}
	a, err := Render(trade)
	require.NoError(t, err)
	b, err := Render(trade)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	trade.PriceMinorUnits++
	c, err := Render(trade)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRenderRejectsInput(t *testing.T) {
	seller := testAddress(2)

	_, err := Render(Trade{SellerAddress: seller[:57], PriceMinorUnits: 1, AssetAmount: 1})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Render(Trade{SellerAddress: seller, PriceMinorUnits: 0, AssetAmount: 1})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Render(Trade{SellerAddress: seller, PriceMinorUnits: 1, AssetAmount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRenderTrimsSellerAddress(t *testing.T) {
	seller := testAddress(4)
	a, err := Render(Trade{SellerAddress: "  " + seller + "\n", PriceMinorUnits: 10, AssetAmount: 1})
	require.NoError(t, err)
	b, err := Render(Trade{SellerAddress: seller, PriceMinorUnits: 10, AssetAmount: 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
