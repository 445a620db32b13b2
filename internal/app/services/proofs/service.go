// Package proofs implements the verification orchestrator: it drives a
// proof submission from pending to verified or failed, coordinating the
// ledger client and the transaction matcher.
package proofs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/markaproof/marka/internal/app/domain/proof"
	"github.com/markaproof/marka/internal/app/storage"
	"github.com/markaproof/marka/internal/ton"
	"github.com/markaproof/marka/pkg/logger"
)

// Ledger is the slice of the ton client the orchestrator depends on.
type Ledger interface {
	RecentIncoming(ctx context.Context, limit int) ([]ton.Transaction, error)
	Submit(ctx context.Context, fp string) (ton.PendingLinkage, error)
	WalletAddress() (ton.Address, error)
	ExpectedAmount() uint64
}

// ErrMalformedEvidence reports caller-supplied transaction evidence that
// could not be parsed as a bag of cells.
var ErrMalformedEvidence = errors.New("transaction evidence could not be parsed")

// Request validation errors, mapped to 4xx responses by the HTTP layer.
var (
	ErrMissingFileName = errors.New("fileName is required")
	ErrMissingEvidence = errors.New("transaction evidence is required")
)

const (
	defaultSettleDelay    = 15 * time.Second
	defaultCandidateLimit = 50
)

// Options tunes orchestrator timing.
type Options struct {
	// SettleDelay is waited before the first indexer query, giving the
	// eventually-consistent indexer time to pick up the transaction.
	SettleDelay time.Duration
	// CandidateLimit caps how many recent transactions are fetched.
	CandidateLimit int
}

// Service is the verification orchestrator.
type Service struct {
	store    storage.ProofStore
	ledger   Ledger
	explorer *ton.Explorer
	tasks    *Tasks
	log      *logger.Logger

	settleDelay    time.Duration
	candidateLimit int
}

// New constructs the orchestrator.
func New(store storage.ProofStore, ledger Ledger, explorer *ton.Explorer, tasks *Tasks, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewDefault("proofs")
	}
	if tasks == nil {
		tasks = NewTasks(log)
	}
	settle := opts.SettleDelay
	if settle == 0 {
		settle = defaultSettleDelay
	}
	limit := opts.CandidateLimit
	if limit == 0 {
		limit = defaultCandidateLimit
	}
	return &Service{
		store:          store,
		ledger:         ledger,
		explorer:       explorer,
		tasks:          tasks,
		log:            log,
		settleDelay:    settle,
		candidateLimit: limit,
	}
}

// SubmitRequest carries one proof submission.
type SubmitRequest struct {
	Fingerprint  string
	FileName     string
	FileSize     int64
	FileType     string
	SubmitterRef string
	// Evidence is the caller's broadcast transaction as a base64 bag of
	// cells.
	Evidence string
}

func (r SubmitRequest) validate() error {
	if !proof.ValidFingerprint(r.Fingerprint) {
		return proof.ErrInvalidFingerprint
	}
	if r.FileName == "" {
		return ErrMissingFileName
	}
	if r.Evidence == "" {
		return ErrMissingEvidence
	}
	return nil
}

func (r SubmitRequest) draft() proof.Proof {
	fileType := r.FileType
	if fileType == "" {
		fileType = "unknown"
	}
	return proof.Proof{
		Fingerprint:  r.Fingerprint,
		SubmitterRef: r.SubmitterRef,
		FileName:     r.FileName,
		FileSize:     r.FileSize,
		FileType:     fileType,
		Status:       proof.StatusPending,
	}
}

// SubmitAsync persists a pending record and verifies it on a detached
// background task. The caller gets the pending record immediately and is
// expected to poll for the status change.
func (s *Service) SubmitAsync(ctx context.Context, req SubmitRequest) (proof.Proof, error) {
	if err := req.validate(); err != nil {
		return proof.Proof{}, err
	}

	created, err := s.store.CreateProof(ctx, req.draft())
	if err != nil {
		return proof.Proof{}, err
	}

	evidence := req.Evidence
	fp := req.Fingerprint
	s.tasks.Go("verify-proof", func(taskCtx context.Context) {
		upd := s.resolveWithEvidence(taskCtx, fp, evidence, s.settleDelay)
		s.finish(taskCtx, created.ID, upd)
	})

	s.log.WithField("proof_id", created.ID).
		WithField("fingerprint", fp).
		Info("proof submitted; verification scheduled")
	return created, nil
}

// VerifySync verifies inline and returns a record whose status is already
// terminal. Malformed evidence is rejected before anything is persisted.
func (s *Service) VerifySync(ctx context.Context, req SubmitRequest) (proof.Proof, error) {
	if err := req.validate(); err != nil {
		return proof.Proof{}, err
	}
	if err := parseEvidence(req.Evidence); err != nil {
		return proof.Proof{}, err
	}

	created, err := s.store.CreateProof(ctx, req.draft())
	if err != nil {
		return proof.Proof{}, err
	}

	upd := s.resolve(ctx, req.Fingerprint, 0)
	updated, err := s.store.UpdateProofVerification(ctx, created.ID, upd)
	if err != nil {
		return proof.Proof{}, err
	}
	return updated, nil
}

// AnchorRequest asks the service wallet itself to anchor a fingerprint.
type AnchorRequest struct {
	Fingerprint  string
	FileName     string
	FileSize     int64
	FileType     string
	SubmitterRef string
}

// Anchor broadcasts the anchoring transfer from the service wallet and
// persists a pending record carrying the provisional linkage from the
// wallet's own state. The indexer stays the source of truth; the record is
// confirmed out of band.
func (s *Service) Anchor(ctx context.Context, req AnchorRequest) (proof.Proof, error) {
	if !proof.ValidFingerprint(req.Fingerprint) {
		return proof.Proof{}, proof.ErrInvalidFingerprint
	}

	linkage, err := s.ledger.Submit(ctx, req.Fingerprint)
	if err != nil {
		return proof.Proof{}, err
	}

	draft := SubmitRequest{
		Fingerprint:  req.Fingerprint,
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		FileType:     req.FileType,
		SubmitterRef: req.SubmitterRef,
	}.draft()
	draft.TxHash = linkage.HashHex
	draft.TxLT = linkage.LT
	if draft.FileName == "" {
		draft.FileName = "unknown"
	}

	created, err := s.store.CreateProof(ctx, draft)
	if err != nil {
		// The transfer is already on its way; surface the record anyway.
		s.log.WithError(err).WithField("fingerprint", req.Fingerprint).
			Error("anchor broadcast succeeded but persisting the proof failed")
		return proof.Proof{}, err
	}
	return created, nil
}

// Get looks a proof up by id, or by fingerprint (most recent record) when
// the identifier is a well-formed fingerprint rather than a record id.
func (s *Service) Get(ctx context.Context, idOrFingerprint string) (proof.Proof, error) {
	if proof.ValidFingerprint(idOrFingerprint) {
		return s.store.GetProofByFingerprint(ctx, idOrFingerprint)
	}
	return s.store.GetProof(ctx, idOrFingerprint)
}

// History returns every record for a fingerprint, newest first.
func (s *Service) History(ctx context.Context, fp string) ([]proof.Proof, error) {
	if !proof.ValidFingerprint(fp) {
		return nil, proof.ErrInvalidFingerprint
	}
	return s.store.ListProofsByFingerprint(ctx, fp)
}

// BySubmitter returns every record submitted by one account.
func (s *Service) BySubmitter(ctx context.Context, submitterRef string) ([]proof.Proof, error) {
	return s.store.ListProofsBySubmitter(ctx, submitterRef)
}

// resolveWithEvidence validates the evidence and then resolves the proof.
func (s *Service) resolveWithEvidence(ctx context.Context, fp, evidence string, settle time.Duration) proof.VerificationUpdate {
	if err := parseEvidence(evidence); err != nil {
		return failedUpdate("Transaction evidence could not be parsed. Please resubmit from your wallet.")
	}
	return s.resolve(ctx, fp, settle)
}

// resolve performs one verification pass: optional settle delay, candidate
// fetch, match. It always produces a terminal update; ledger outages
// resolve to failed rather than leaving the record pending forever.
func (s *Service) resolve(ctx context.Context, fp string, settle time.Duration) proof.VerificationUpdate {
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return failedUpdate("Verification was interrupted. Please resubmit.")
		}
	}

	expected, err := s.ledger.WalletAddress()
	if err != nil {
		return failedUpdate("Verification is not configured. Please contact support.")
	}

	candidates, err := s.ledger.RecentIncoming(ctx, s.candidateLimit)
	if err != nil {
		s.log.WithError(err).WithField("fingerprint", fp).Warn("candidate fetch failed")
		if errors.Is(err, ton.ErrLedgerUnavailable) {
			return failedUpdate("The ledger indexer is temporarily unavailable. Please resubmit.")
		}
		return failedUpdate("Verification failed. Please resubmit.")
	}

	tx, ok := ton.MatchIncoming(candidates, expected, fp, s.ledger.ExpectedAmount())
	if !ok {
		return failedUpdate("Transaction not found. Please ensure you sent the correct amount with the proof fingerprint.")
	}

	upd := proof.VerificationUpdate{
		Status: proof.StatusVerified,
		TxHash: tx.HashHex,
		TxLT:   tx.LT,
	}
	if s.explorer != nil {
		upd.ExplorerURL = s.explorer.TransactionURL(tx.LT, tx.HashBase64)
	}
	return upd
}

// finish writes the terminal status. A missing record is not an error: it
// may have been administratively removed while verification ran.
func (s *Service) finish(ctx context.Context, id string, upd proof.VerificationUpdate) {
	updated, err := s.store.UpdateProofVerification(ctx, id, upd)
	if err != nil {
		s.log.WithError(err).WithField("proof_id", id).Warn("could not record verification outcome")
		return
	}
	s.log.WithField("proof_id", id).
		WithField("status", updated.Status).
		Info("proof verification resolved")
}

func failedUpdate(detail string) proof.VerificationUpdate {
	return proof.VerificationUpdate{Status: proof.StatusFailed, ErrorDetail: detail}
}

func parseEvidence(evidence string) error {
	raw, err := base64.StdEncoding.DecodeString(evidence)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvidence, err)
	}
	if _, err := ton.ParseBOC(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvidence, err)
	}
	return nil
}
