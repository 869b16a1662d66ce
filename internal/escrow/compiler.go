package escrow

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Program is a compiled escrow program and the account it controls.
type Program struct {
	Source   string
	Bytecode []byte
	Address  string
}

// Compile compiles source through the ledger and derives the escrow address.
// Failures are never retried: the source is deterministic, so a second
// attempt fails the same way.
func Compile(ctx context.Context, compiler ProgramCompiler, source string) (Program, error) {
	bytecode, err := compiler.CompileProgram(ctx, source)
	if err != nil {
		return Program{}, fmt.Errorf("%w: %v", ErrCompilationFailed, err)
	}
	addr, err := ProgramAddress(bytecode)
	if err != nil {
		return Program{}, err
	}
	return Program{Source: source, Bytecode: bytecode, Address: addr}, nil
}

// RenderAndCompile renders t and compiles the result.
func RenderAndCompile(ctx context.Context, compiler ProgramCompiler, t Trade) (Program, error) {
	source, err := Render(t)
	if err != nil {
		return Program{}, err
	}
	return Compile(ctx, compiler, source)
}

// ProgramAddress derives the logic-signature address controlled by bytecode.
func ProgramAddress(bytecode []byte) (string, error) {
	lsa, err := programAccount(bytecode)
	if err != nil {
		return "", err
	}
	addr, err := lsa.Address()
	if err != nil {
		return "", fmt.Errorf("%w: derive address: %v", ErrCompilationFailed, err)
	}
	return addr.String(), nil
}

// SignWithProgram authorizes tx with the escrow program itself instead of a key.
// The ledger evaluates the program against the whole group.
func SignWithProgram(tx types.Transaction, bytecode []byte) ([]byte, error) {
	lsa, err := programAccount(bytecode)
	if err != nil {
		return nil, err
	}
	addr, err := lsa.Address()
	if err != nil {
		return nil, fmt.Errorf("%w: derive address: %v", ErrCompilationFailed, err)
	}
	if tx.Sender != addr {
		return nil, fmt.Errorf("program controls %s, transaction is sent by %s", addr, tx.Sender)
	}
	_, stx, err := crypto.SignLogicSigAccountTransaction(lsa, tx)
	if err != nil {
		return nil, fmt.Errorf("sign with program: %w", err)
	}
	return stx, nil
}

func programAccount(bytecode []byte) (crypto.LogicSigAccount, error) {
	lsa, err := crypto.MakeLogicSigAccountEscrowChecked(bytecode, nil)
	if err != nil {
		return crypto.LogicSigAccount{}, fmt.Errorf("%w: %v", ErrCompilationFailed, err)
	}
	return lsa, nil
}
