package memory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/markaproof/marka/internal/app/domain/proof"
)

func fp(ch string) string { return strings.Repeat(ch, 64) }

func TestCreateAndGetProof(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateProof(ctx, proof.Proof{
		Fingerprint: fp("a"),
		FileName:    "doc.pdf",
		FileSize:    1024,
		FileType:    "application/pdf",
	})
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created proof must get an id")
	}
	if created.Status != proof.StatusPending {
		t.Fatalf("status = %s, want pending", created.Status)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("timestamps must be set")
	}

	got, err := s.GetProof(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if got.FileName != "doc.pdf" {
		t.Fatalf("file name = %s", got.FileName)
	}
}

func TestCreateProofRejectsBadFingerprint(t *testing.T) {
	s := New()
	_, err := s.CreateProof(context.Background(), proof.Proof{Fingerprint: "nope", FileName: "x"})
	if !errors.Is(err, proof.ErrInvalidFingerprint) {
		t.Fatalf("err = %v, want ErrInvalidFingerprint", err)
	}
}

func TestGetProofMissing(t *testing.T) {
	s := New()
	if _, err := s.GetProof(context.Background(), "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
	if _, err := s.GetProofByFingerprint(context.Background(), fp("b")); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestGetProofByFingerprintReturnsNewest(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateProof(ctx, proof.Proof{Fingerprint: fp("c"), FileName: "first"})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateProof(ctx, proof.Proof{Fingerprint: fp("c"), FileName: "second"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProofByFingerprint(ctx, fp("c"))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != second.ID {
		t.Fatalf("got %s, want the newer record %s", got.ID, second.ID)
	}

	all, err := s.ListProofsByFingerprint(ctx, fp("c"))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("history not newest first: %+v", all)
	}
}

func TestListProofsBySubmitter(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateProof(ctx, proof.Proof{Fingerprint: fp("d"), FileName: "a", SubmitterRef: "alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateProof(ctx, proof.Proof{Fingerprint: fp("e"), FileName: "b", SubmitterRef: "bob"}); err != nil {
		t.Fatal(err)
	}

	mine, err := s.ListProofsBySubmitter(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].SubmitterRef != "alice" {
		t.Fatalf("unexpected result: %+v", mine)
	}
}

func TestUpdateProofVerification(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateProof(ctx, proof.Proof{Fingerprint: fp("f"), FileName: "x"})
	if err != nil {
		t.Fatal(err)
	}

	verified, err := s.UpdateProofVerification(ctx, created.ID, proof.VerificationUpdate{
		Status:      proof.StatusVerified,
		TxHash:      "hash",
		TxLT:        "123",
		ExplorerURL: "https://tonscan.org/transaction/123/hash",
	})
	if err != nil {
		t.Fatalf("UpdateProofVerification: %v", err)
	}
	if verified.Status != proof.StatusVerified || verified.TxHash != "hash" {
		t.Fatalf("unexpected record: %+v", verified)
	}
	if verified.LastCheckedAt == nil {
		t.Fatal("last checked timestamp must be set")
	}

	// An update without linkage fields must not erase the stored linkage.
	failed, err := s.UpdateProofVerification(ctx, created.ID, proof.VerificationUpdate{
		Status:      proof.StatusFailed,
		ErrorDetail: "recheck failed",
	})
	if err != nil {
		t.Fatal(err)
	}
	if failed.TxHash != "hash" || failed.TxLT != "123" {
		t.Fatalf("linkage was erased: %+v", failed)
	}
	if failed.ErrorDetail != "recheck failed" {
		t.Fatalf("error detail = %q", failed.ErrorDetail)
	}
}

func TestUpdateProofVerificationMissing(t *testing.T) {
	s := New()
	_, err := s.UpdateProofVerification(context.Background(), "missing", proof.VerificationUpdate{Status: proof.StatusFailed})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}
