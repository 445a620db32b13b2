// Package proof defines the proof-of-existence record and its lifecycle.
package proof

import (
	"errors"
	"regexp"
	"time"
)

// Status is the lifecycle state of a proof record. A record starts
// pending and settles into exactly one terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"

	// Older rows written before the rename carry this value.
	statusConfirmed Status = "confirmed"
)

// Normalized maps legacy status values onto the current set.
func (s Status) Normalized() Status {
	if s == statusConfirmed {
		return StatusVerified
	}
	return s
}

// Terminal reports whether the status is final. Terminal records never
// transition again.
func (s Status) Terminal() bool {
	switch s.Normalized() {
	case StatusVerified, StatusFailed:
		return true
	}
	return false
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ErrInvalidFingerprint reports a fingerprint that is not 64 lowercase
// hex characters.
var ErrInvalidFingerprint = errors.New("fingerprint must be 64 lowercase hex characters")

// ValidFingerprint reports whether fp is a well-formed content
// fingerprint.
func ValidFingerprint(fp string) bool {
	return fingerprintPattern.MatchString(fp)
}

// Proof is one attestation attempt for a content fingerprint. The same
// fingerprint may have many records; each is an independent attempt.
type Proof struct {
	ID            string     `json:"id"`
	Fingerprint   string     `json:"fileHash"`
	SubmitterRef  string     `json:"walletAddress,omitempty"`
	FileName      string     `json:"fileName"`
	FileSize      int64      `json:"fileSize"`
	FileType      string     `json:"fileType"`
	Status        Status     `json:"status"`
	TxHash        string     `json:"tonTransactionHash,omitempty"`
	TxLT          string     `json:"tonTransactionLt,omitempty"`
	ExplorerURL   string     `json:"tonscanUrl,omitempty"`
	ErrorDetail   string     `json:"errorMessage,omitempty"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// VerificationUpdate carries the outcome of one verification pass.
// Empty linkage fields leave the stored values untouched so a failed
// recheck cannot erase an earlier transaction reference.
type VerificationUpdate struct {
	Status      Status
	TxHash      string
	TxLT        string
	ExplorerURL string
	ErrorDetail string
}
