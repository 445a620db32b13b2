// Package memory provides an in-memory ProofStore used by tests and by
// credential-less development runs.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markaproof/marka/internal/app/domain/proof"
	"github.com/markaproof/marka/internal/app/storage"
)

// Store keeps proof records in a map guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	proofs map[string]proof.Proof
}

var _ storage.ProofStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{proofs: make(map[string]proof.Proof)}
}

func (s *Store) CreateProof(ctx context.Context, p proof.Proof) (proof.Proof, error) {
	if !proof.ValidFingerprint(p.Fingerprint) {
		return proof.Proof{}, proof.ErrInvalidFingerprint
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = proof.StatusPending
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs[p.ID] = p
	return p, nil
}

func (s *Store) GetProof(ctx context.Context, id string) (proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[id]
	if !ok {
		return proof.Proof{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProofByFingerprint(ctx context.Context, fp string) (proof.Proof, error) {
	all, err := s.ListProofsByFingerprint(ctx, fp)
	if err != nil {
		return proof.Proof{}, err
	}
	if len(all) == 0 {
		return proof.Proof{}, sql.ErrNoRows
	}
	return all[0], nil
}

func (s *Store) ListProofsByFingerprint(ctx context.Context, fp string) ([]proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []proof.Proof
	for _, p := range s.proofs {
		if p.Fingerprint == fp {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListProofsBySubmitter(ctx context.Context, submitterRef string) ([]proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []proof.Proof
	for _, p := range s.proofs {
		if p.SubmitterRef == submitterRef {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) UpdateProofVerification(ctx context.Context, id string, upd proof.VerificationUpdate) (proof.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proofs[id]
	if !ok {
		return proof.Proof{}, sql.ErrNoRows
	}

	now := time.Now().UTC()
	p.Status = upd.Status
	p.ErrorDetail = upd.ErrorDetail
	if upd.TxHash != "" {
		p.TxHash = upd.TxHash
	}
	if upd.TxLT != "" {
		p.TxLT = upd.TxLT
	}
	if upd.ExplorerURL != "" {
		p.ExplorerURL = upd.ExplorerURL
	}
	p.LastCheckedAt = &now
	p.UpdatedAt = now

	s.proofs[id] = p
	return p, nil
}

func sortNewestFirst(proofs []proof.Proof) {
	sort.SliceStable(proofs, func(i, j int) bool {
		return proofs[i].CreatedAt.After(proofs[j].CreatedAt)
	})
}
