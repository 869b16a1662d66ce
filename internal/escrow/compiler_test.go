package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileIsDeterministic(t *testing.T) {
	ctx := context.Background()
	ledger := NewFakeLedger()
	buyer, seller := testAddress(1), testAddress(2)
	trade := Trade{AssetID: 0, SellerAddress: seller, PriceMinorUnits: 500_000_000, AssetAmount: 1}

	first, err := RenderAndCompile(ctx, ledger, trade)
	require.NoError(t, err)
	second, err := RenderAndCompile(ctx, ledger, trade)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.Bytecode, second.Bytecode)
	assert.Len(t, first.Address, AddressLength)
	assert.True(t, ValidateAddress(first.Address))
	assert.NotEqual(t, buyer, first.Address)
	assert.NotEqual(t, seller, first.Address)

	derived, err := ProgramAddress(first.Bytecode)
	require.NoError(t, err)
	assert.Equal(t, first.Address, derived)
}

func TestCompileFailureIsNotRetried(t *testing.T) {
	ledger := NewFakeLedger()
	ledger.CompileErr = errors.New("unknown opcode: gtxnx")

	_, err := Compile(context.Background(), ledger, "#pragma version 5\ngtxnx 0\n")
	require.ErrorIs(t, err, ErrCompilationFailed)
	assert.Contains(t, err.Error(), "unknown opcode")
	assert.Equal(t, 1, ledger.CompileCalls())
	assert.Equal(t, CategoryCompilationFailed, CategoryOf(err))
}

func TestRenderAndCompileStopsBeforeNetworkOnBadSeller(t *testing.T) {
	ledger := NewFakeLedger()
	_, err := RenderAndCompile(context.Background(), ledger, Trade{SellerAddress: "SHORT", PriceMinorUnits: 1, AssetAmount: 1})
	require.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, ledger.CompileCalls())
}

func TestProgramAddressRejectsEmptyProgram(t *testing.T) {
	_, err := ProgramAddress(nil)
	assert.ErrorIs(t, err, ErrCompilationFailed)
}
