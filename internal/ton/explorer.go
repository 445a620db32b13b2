package ton

import (
	"fmt"
	"net/url"
	"strings"
)

// Explorer builds public explorer links for confirmed transactions.
// Testnet explorers use /tx/<lt>/<base64url hash>; mainnet uses
// /transaction/<lt>/<base64 hash>.
type Explorer struct {
	base    string
	testnet bool
}

// NewExplorer derives an Explorer from a base URL such as
// "https://tonscan.org/tx".
func NewExplorer(baseURL string) (*Explorer, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid explorer base URL %q", baseURL)
	}
	return &Explorer{
		base:    strings.TrimSuffix(baseURL, "/tx"),
		testnet: strings.Contains(parsed.Host, "testnet"),
	}, nil
}

// TransactionURL renders the explorer link for a transaction identified by
// its logical time and base64 hash.
func (e *Explorer) TransactionURL(lt, hashBase64 string) string {
	if e.testnet {
		return fmt.Sprintf("%s/tx/%s/%s", e.base, lt, url.PathEscape(base64ToURL(hashBase64)))
	}
	return fmt.Sprintf("%s/transaction/%s/%s", e.base, lt, url.PathEscape(hashBase64))
}

// base64ToURL converts standard base64 to unpadded base64url.
func base64ToURL(s string) string {
	s = strings.TrimRight(s, "=")
	s = strings.ReplaceAll(s, "+", "-")
	return strings.ReplaceAll(s, "/", "_")
}
