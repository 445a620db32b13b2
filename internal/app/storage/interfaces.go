// Package storage defines persistence interfaces for the proof pipeline.
package storage

import (
	"context"

	"github.com/markaproof/marka/internal/app/domain/proof"
)

// ProofStore persists proof records. Lookups that find nothing return
// sql.ErrNoRows regardless of backend.
type ProofStore interface {
	CreateProof(ctx context.Context, p proof.Proof) (proof.Proof, error)
	GetProof(ctx context.Context, id string) (proof.Proof, error)

	// GetProofByFingerprint returns the most recent record with the
	// fingerprint.
	GetProofByFingerprint(ctx context.Context, fp string) (proof.Proof, error)

	// ListProofsByFingerprint returns all records with the fingerprint,
	// newest first.
	ListProofsByFingerprint(ctx context.Context, fp string) ([]proof.Proof, error)
	ListProofsBySubmitter(ctx context.Context, submitterRef string) ([]proof.Proof, error)

	// UpdateProofVerification overwrites status, linkage, error detail and
	// the checked/updated timestamps. It does not inspect the prior state;
	// the orchestrator calls it at most once per terminal transition.
	UpdateProofVerification(ctx context.Context, id string, upd proof.VerificationUpdate) (proof.Proof, error)
}
