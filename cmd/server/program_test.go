package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigescrow/internal/escrow"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func sellerAddress() string {
	var a types.Address
	for i := range a {
		a[i] = 2
	}
	return a.String()
}

func TestRenderCommand(t *testing.T) {
	t.Setenv("ESCROW_STORE_DRIVER", "memory")
	out, err := run(t, "render", "--seller", sellerAddress(), "--price", "500")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#pragma version 5"))
	assert.Contains(t, out, "int 500000000")
	assert.Contains(t, out, sellerAddress())
}

func TestAddressCommandUsesFakeLedger(t *testing.T) {
	t.Setenv("ESCROW_STORE_DRIVER", "memory")
	out, err := run(t, "address", "--seller", sellerAddress(), "--price", "500")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), escrow.AddressLength)
}

func TestRenderRejectsBadSeller(t *testing.T) {
	t.Setenv("ESCROW_STORE_DRIVER", "memory")
	_, err := run(t, "render", "--seller", sellerAddress()[:57], "--price", "1")
	assert.ErrorIs(t, err, escrow.ErrInvalidAddress)
}
