package ton

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"
)

func testAddr(fill byte) Address {
	var a Address
	for i := range a.Hash {
		a.Hash[i] = fill
	}
	return a
}

func TestParseAddressEncodingsAgree(t *testing.T) {
	addr := testAddr(0xab)

	forms := []string{
		addr.Raw(),
		addr.Friendly(true, false),
		addr.Friendly(false, false),
		addr.Friendly(true, true),
		addr.Friendly(false, true),
	}
	for _, form := range forms {
		parsed, err := ParseAddress(form)
		if err != nil {
			t.Fatalf("ParseAddress(%q): %v", form, err)
		}
		if !parsed.Equal(addr) {
			t.Fatalf("ParseAddress(%q) = %s, want %s", form, parsed.Raw(), addr.Raw())
		}
	}
}

func TestParseAddressRaw(t *testing.T) {
	addr, err := ParseAddress("-1:" + strings.Repeat("00", 32))
	if err != nil {
		t.Fatalf("parse raw: %v", err)
	}
	if addr.Workchain != -1 {
		t.Fatalf("workchain = %d, want -1", addr.Workchain)
	}
}

func TestParseAddressChecksumMismatch(t *testing.T) {
	buf := make([]byte, 36)
	buf[0] = tagBounceable
	for i := 2; i < 34; i++ {
		buf[i] = 0x42
	}
	binary.BigEndian.PutUint16(buf[34:36], crc16(buf[:34])^0xffff)

	if _, err := ParseAddress(base64.URLEncoding.EncodeToString(buf)); err == nil {
		t.Fatal("corrupted checksum should not parse")
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"not an address",
		"0:deadbeef",
		"5:" + strings.Repeat("zz", 32),
		base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		if _, err := ParseAddress(s); err == nil {
			t.Fatalf("ParseAddress(%q) should fail", s)
		}
	}
}

func TestFriendlyRoundTripPreservesWorkchain(t *testing.T) {
	addr := Address{Workchain: -1, Hash: testAddr(0x07).Hash}
	parsed, err := ParseAddress(addr.Friendly(true, false))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Workchain != -1 {
		t.Fatalf("workchain = %d, want -1", parsed.Workchain)
	}
}
