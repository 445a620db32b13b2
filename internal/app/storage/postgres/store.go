// Package postgres implements the ProofStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/markaproof/marka/internal/app/domain/proof"
	"github.com/markaproof/marka/internal/app/storage"
)

// Store implements storage.ProofStore over database/sql.
type Store struct {
	db *sql.DB
}

var _ storage.ProofStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the proofs table and its indexes when absent. The
// DDL is idempotent so repeated startups are safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS proofs (
			id UUID PRIMARY KEY,
			submitter_ref TEXT,
			fingerprint VARCHAR(64) NOT NULL,
			file_name VARCHAR(255) NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			file_type VARCHAR(100) NOT NULL DEFAULT 'unknown',
			ton_transaction_hash VARCHAR(255),
			ton_transaction_lt VARCHAR(255),
			tonscan_url TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			error_message TEXT,
			last_checked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proofs_fingerprint ON proofs(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_proofs_submitter_ref ON proofs(submitter_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_proofs_ton_hash ON proofs(ton_transaction_hash)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const proofColumns = `id, submitter_ref, fingerprint, file_name, file_size, file_type,
	ton_transaction_hash, ton_transaction_lt, tonscan_url, status, error_message,
	last_checked_at, created_at, updated_at`

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proofs (id, submitter_ref, fingerprint, file_name, file_size, file_type,
			ton_transaction_hash, ton_transaction_lt, tonscan_url, status, error_message,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, nullable(p.SubmitterRef), p.Fingerprint, p.FileName, p.FileSize, p.FileType,
		nullable(p.TxHash), nullable(p.TxLT), nullable(p.ExplorerURL),
		string(p.Status), nullable(p.ErrorDetail), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return proof.Proof{}, err
	}
	return p, nil
}

func (s *Store) GetProof(ctx context.Context, id string) (proof.Proof, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+proofColumns+`
		FROM proofs
		WHERE id = $1
	`, id)
	return scanProof(row)
}

func (s *Store) GetProofByFingerprint(ctx context.Context, fp string) (proof.Proof, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+proofColumns+`
		FROM proofs
		WHERE fingerprint = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, fp)
	return scanProof(row)
}

func (s *Store) ListProofsByFingerprint(ctx context.Context, fp string) ([]proof.Proof, error) {
	return s.list(ctx, `
		SELECT `+proofColumns+`
		FROM proofs
		WHERE fingerprint = $1
		ORDER BY created_at DESC
	`, fp)
}

func (s *Store) ListProofsBySubmitter(ctx context.Context, submitterRef string) ([]proof.Proof, error) {
	return s.list(ctx, `
		SELECT `+proofColumns+`
		FROM proofs
		WHERE submitter_ref = $1
		ORDER BY created_at DESC
	`, submitterRef)
}

func (s *Store) UpdateProofVerification(ctx context.Context, id string, upd proof.VerificationUpdate) (proof.Proof, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE proofs
		SET status = $2,
			ton_transaction_hash = COALESCE($3, ton_transaction_hash),
			ton_transaction_lt = COALESCE($4, ton_transaction_lt),
			tonscan_url = COALESCE($5, tonscan_url),
			error_message = $6,
			last_checked_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+proofColumns+`
	`, id, string(upd.Status), nullable(upd.TxHash), nullable(upd.TxLT),
		nullable(upd.ExplorerURL), nullable(upd.ErrorDetail))
	return scanProof(row)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]proof.Proof, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []proof.Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProof(row scanner) (proof.Proof, error) {
	var (
		p             proof.Proof
		submitter     sql.NullString
		txHash        sql.NullString
		txLT          sql.NullString
		explorerURL   sql.NullString
		status        string
		errorDetail   sql.NullString
		lastCheckedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &submitter, &p.Fingerprint, &p.FileName, &p.FileSize, &p.FileType,
		&txHash, &txLT, &explorerURL, &status, &errorDetail, &lastCheckedAt,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return proof.Proof{}, err
	}
	p.SubmitterRef = submitter.String
	p.TxHash = txHash.String
	p.TxLT = txLT.String
	p.ExplorerURL = explorerURL.String
	p.Status = proof.Status(status).Normalized()
	p.ErrorDetail = errorDetail.String
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		p.LastCheckedAt = &t
	}
	return p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
