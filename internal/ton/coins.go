package ton

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTON converts a decimal TON amount such as "0.05" into nanotons
// without going through floating point.
func ParseTON(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("amount %q has more than 9 decimal places", s)
	}
	frac += strings.Repeat("0", 9-len(frac))

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return w*1_000_000_000 + f, nil
}

// FormatTON renders nanotons as a decimal TON amount.
func FormatTON(nano uint64) string {
	whole := nano / 1_000_000_000
	frac := nano % 1_000_000_000
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	return fmt.Sprintf("%d.%s", whole, strings.TrimRight(fmt.Sprintf("%09d", frac), "0"))
}
