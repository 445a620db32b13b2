package ton

import "errors"

// ErrLedgerUnavailable reports that the indexer or broadcast network kept
// failing after all retries. The outcome of the underlying transaction is
// unknown; callers must not treat it as "transaction absent".
var ErrLedgerUnavailable = errors.New("ton: ledger unavailable")

// ErrConfig reports missing wallet credentials or endpoints. It is fatal
// and must never be retried.
var ErrConfig = errors.New("ton: configuration error")
