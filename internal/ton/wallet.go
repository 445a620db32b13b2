package ton

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// Wallet signs transfers for the service-controlled wallet contract
// (wallet v4). The account address itself is configured separately; the
// wallet only derives the signing key and builds external messages.
type Wallet struct {
	priv        ed25519.PrivateKey
	subwalletID uint32
}

const defaultSubwalletID = 698983191

// NewWalletFromSeed derives the wallet signing key from a space-separated
// mnemonic using the standard TON derivation (HMAC-SHA512 of the phrase,
// stretched with PBKDF2 over "TON default seed").
func NewWalletFromSeed(seed string) (*Wallet, error) {
	words := strings.Fields(strings.TrimSpace(seed))
	if len(words) == 0 {
		return nil, fmt.Errorf("wallet seed is empty")
	}

	mac := hmac.New(sha512.New, []byte(strings.Join(words, " ")))
	entropy := mac.Sum(nil)

	key := pbkdf2.Key(entropy, []byte("TON default seed"), 100000, ed25519.SeedSize, sha512.New)
	return &Wallet{
		priv:        ed25519.NewKeyFromSeed(key),
		subwalletID: defaultSubwalletID,
	}, nil
}

// PublicKey returns the wallet's public signing key.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	return w.priv.Public().(ed25519.PublicKey)
}

// Transfer describes a single outgoing value transfer with a text comment.
type Transfer struct {
	Seqno       uint32
	Source      Address
	Destination Address
	AmountNano  uint64
	Comment     string
	ValidUntil  time.Time
	Bounce      bool
}

// BuildExternalMessage builds and signs the external message that instructs
// the wallet contract to perform the transfer, serialized as a bag of cells
// ready for broadcast.
func (w *Wallet) BuildExternalMessage(t Transfer) ([]byte, error) {
	comment, err := CommentCell(t.Comment)
	if err != nil {
		return nil, fmt.Errorf("build comment: %w", err)
	}

	// int_msg_info$0: ihr_disabled, bounce, bounced, src omitted, dest,
	// value, empty extra-currency dict, zero fees and lt, body by reference.
	internal, err := NewBuilder().
		StoreBit(false).
		StoreBit(true).
		StoreBit(t.Bounce).
		StoreBit(false).
		StoreAddrNone().
		StoreAddr(t.Destination).
		StoreCoins(t.AmountNano).
		StoreBit(false).    // extra currencies
		StoreCoins(0).      // ihr_fee
		StoreCoins(0).      // fwd_fee
		StoreUint(0, 64).   // created_lt
		StoreUint(0, 32).   // created_at
		StoreBit(false).    // no state init
		StoreBit(true).     // body in reference
		StoreRef(comment).
		EndCell()
	if err != nil {
		return nil, fmt.Errorf("build internal message: %w", err)
	}

	validUntil := t.ValidUntil
	if validUntil.IsZero() {
		validUntil = time.Now().Add(time.Minute)
	}

	unsigned, err := NewBuilder().
		StoreUint(uint64(w.subwalletID), 32).
		StoreUint(uint64(validUntil.Unix()), 32).
		StoreUint(uint64(t.Seqno), 32).
		StoreUint(0, 8).  // op: simple send
		StoreUint(3, 8).  // send mode: pay fees separately, ignore errors
		StoreRef(internal).
		EndCell()
	if err != nil {
		return nil, fmt.Errorf("build wallet order: %w", err)
	}

	hash := unsigned.Hash()
	signature := ed25519.Sign(w.priv, hash[:])

	signed, err := NewBuilder().
		StoreBytes(signature).
		StoreUint(uint64(w.subwalletID), 32).
		StoreUint(uint64(validUntil.Unix()), 32).
		StoreUint(uint64(t.Seqno), 32).
		StoreUint(0, 8).
		StoreUint(3, 8).
		StoreRef(internal).
		EndCell()
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	// ext_in_msg_info$10: no source, destination wallet, zero import fee.
	external, err := NewBuilder().
		StoreUint(0b10, 2).
		StoreAddrNone().
		StoreAddr(t.Source).
		StoreCoins(0).
		StoreBit(false). // no state init
		StoreBit(true).  // body in reference
		StoreRef(signed).
		EndCell()
	if err != nil {
		return nil, fmt.Errorf("build external message: %w", err)
	}

	return SerializeBOC(external)
}
