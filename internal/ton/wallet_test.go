package ton

import (
	"bytes"
	"testing"
	"time"
)

const testSeed = "salute zoo faith ribbon ketchup supply canvas armor burden flight ten wrist"

func TestNewWalletFromSeedDeterministic(t *testing.T) {
	w1, err := NewWalletFromSeed(testSeed)
	if err != nil {
		t.Fatalf("NewWalletFromSeed: %v", err)
	}
	w2, err := NewWalletFromSeed(testSeed)
	if err != nil {
		t.Fatalf("NewWalletFromSeed: %v", err)
	}
	if !bytes.Equal(w1.PublicKey(), w2.PublicKey()) {
		t.Fatal("same seed must derive the same key")
	}

	other, err := NewWalletFromSeed(testSeed + " extra")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(w1.PublicKey(), other.PublicKey()) {
		t.Fatal("different seeds must derive different keys")
	}
}

func TestNewWalletFromSeedNormalisesWhitespace(t *testing.T) {
	w1, err := NewWalletFromSeed(testSeed)
	if err != nil {
		t.Fatal(err)
	}
	w2, err := NewWalletFromSeed("  " + testSeed + "\n")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w1.PublicKey(), w2.PublicKey()) {
		t.Fatal("surrounding whitespace must not change the derived key")
	}
}

func TestNewWalletFromSeedEmpty(t *testing.T) {
	if _, err := NewWalletFromSeed("   "); err == nil {
		t.Fatal("empty seed should fail")
	}
}

func TestBuildExternalMessageIsValidBOC(t *testing.T) {
	w, err := NewWalletFromSeed(testSeed)
	if err != nil {
		t.Fatal(err)
	}

	addr := testAddr(0x33)
	transfer := Transfer{
		Seqno:       7,
		Source:      addr,
		Destination: addr,
		AmountNano:  50_000_000,
		Comment:     "Proof:" + matchFingerprint,
		ValidUntil:  time.Unix(1_900_000_000, 0),
	}

	boc, err := w.BuildExternalMessage(transfer)
	if err != nil {
		t.Fatalf("BuildExternalMessage: %v", err)
	}

	root, err := ParseBOC(boc)
	if err != nil {
		t.Fatalf("broadcast payload must parse as a bag of cells: %v", err)
	}
	// external message -> signed order -> internal message -> comment
	if len(root.Refs()) != 1 {
		t.Fatalf("external message refs = %d, want 1", len(root.Refs()))
	}
	signed := root.Refs()[0]
	if len(signed.Refs()) != 1 {
		t.Fatalf("signed order refs = %d, want 1", len(signed.Refs()))
	}
	comment := signed.Refs()[0].Refs()
	if len(comment) != 1 {
		t.Fatalf("internal message refs = %d, want 1", len(comment))
	}

	wantBody, err := CommentCell(transfer.Comment)
	if err != nil {
		t.Fatal(err)
	}
	if comment[0].Hash() != wantBody.Hash() {
		t.Fatal("comment payload must survive serialization")
	}
}

func TestBuildExternalMessageSeqnoChangesPayload(t *testing.T) {
	w, err := NewWalletFromSeed(testSeed)
	if err != nil {
		t.Fatal(err)
	}
	addr := testAddr(0x33)
	base := Transfer{
		Source:      addr,
		Destination: addr,
		AmountNano:  50_000_000,
		Comment:     "Proof:deadbeef",
		ValidUntil:  time.Unix(1_900_000_000, 0),
	}

	a := base
	a.Seqno = 1
	b := base
	b.Seqno = 2

	bocA, err := w.BuildExternalMessage(a)
	if err != nil {
		t.Fatal(err)
	}
	bocB, err := w.BuildExternalMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(bocA, bocB) {
		t.Fatal("different seqnos must produce different messages")
	}
}
