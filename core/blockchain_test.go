package core

import (
	"testing"

	"github.com/ethstate/execution-core/core/types"
)

func TestBlockchainInsertAndLookup(t *testing.T) {
	bc, _ := testChain(t)

	block := makeBlock(bc.Genesis(), nil)
	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	if got := bc.CurrentBlock().Hash(); got != block.Hash() {
		t.Errorf("head = %s, want %s", got.Hex(), block.Hash().Hex())
	}
	if got := bc.GetBlockByNumber(1); got == nil || got.Hash() != block.Hash() {
		t.Error("GetBlockByNumber(1) did not return the inserted block")
	}
	if !bc.HasBlock(block.Hash()) {
		t.Error("HasBlock returned false for inserted block")
	}
	if got := bc.ChainLength(); got != 2 {
		t.Errorf("chain length = %d, want 2", got)
	}
}

func TestBlockchainInsertIsIdempotent(t *testing.T) {
	bc, _ := testChain(t)
	block := makeBlock(bc.Genesis(), nil)

	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("re-insert of known block should be a no-op, got %v", err)
	}
	if got := bc.ChainLength(); got != 2 {
		t.Errorf("chain length = %d, want 2", got)
	}
}

func TestBlockchainRejectsUnknownParent(t *testing.T) {
	bc, _ := testChain(t)

	orphanParent := makeValidParent()
	header := makeValidChild(orphanParent)
	block := types.NewBlock(header, &types.Body{Withdrawals: []*types.Withdrawal{}})

	if err := bc.InsertBlock(block); err == nil {
		t.Fatal("expected error for block with unknown parent")
	}
}

func TestBlockchainRejectsWrongReceiptRoot(t *testing.T) {
	bc, _ := testChain(t)

	valid := makeBlock(bc.Genesis(), nil)
	h := *valid.Header()
	h.ReceiptHash[0] ^= 0x01 // single-bit corruption
	block := types.NewBlock(&h, valid.Body())

	if err := bc.InsertBlock(block); err == nil {
		t.Fatal("expected rejection for corrupted receipt root")
	}
}

func TestBlockchainRejectsWrongStateRoot(t *testing.T) {
	bc, _ := testChain(t)

	valid := makeBlock(bc.Genesis(), nil)
	h := *valid.Header()
	h.Root[31] ^= 0x01
	block := types.NewBlock(&h, valid.Body())

	if err := bc.InsertBlock(block); err == nil {
		t.Fatal("expected rejection for corrupted state root")
	}
}

func TestBlockchainSetHead(t *testing.T) {
	bc, _ := testChain(t)
	block := makeBlock(bc.Genesis(), nil)
	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	if err := bc.SetHead(0); err != nil {
		t.Fatalf("SetHead(0): %v", err)
	}
	if got := bc.CurrentBlock().Hash(); got != bc.Genesis().Hash() {
		t.Error("head not rewound to genesis")
	}
	if bc.GetBlockByNumber(1) != nil {
		t.Error("rewound block still canonical")
	}

	if err := bc.SetHead(5); err == nil {
		t.Error("SetHead above the chain tip should fail")
	}
}

func TestBlockchainGetHashFn(t *testing.T) {
	bc, _ := testChain(t)
	block := makeBlock(bc.Genesis(), nil)
	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	getHash := bc.GetHashFn()
	if got := getHash(0); got != bc.Genesis().Hash() {
		t.Error("getHash(0) != genesis hash")
	}
	if got := getHash(1); got != block.Hash() {
		t.Error("getHash(1) != inserted block hash")
	}
	if got := getHash(99); got != (types.Hash{}) {
		t.Error("getHash(unknown) should be zero")
	}
}
