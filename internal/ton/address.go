package ton

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address is a TON account address. The same account can appear as a raw
// "workchain:hex" string or as a user-friendly base64 form with bounceable,
// non-bounceable and testnet variants; all of them parse to the same value.
type Address struct {
	Workchain int8
	Hash      [32]byte
}

const (
	tagBounceable    = 0x11
	tagNonBounceable = 0x51
	tagTestnetFlag   = 0x80
)

// ParseAddress accepts raw ("0:<64 hex>") and user-friendly (base64 or
// base64url, 36 bytes) encodings.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	if i := strings.IndexByte(s, ':'); i >= 0 {
		return parseRaw(s[:i], s[i+1:])
	}
	return parseFriendly(s)
}

func parseRaw(wcPart, hashPart string) (Address, error) {
	wc, err := strconv.ParseInt(wcPart, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("invalid workchain %q", wcPart)
	}
	raw, err := hex.DecodeString(hashPart)
	if err != nil || len(raw) != 32 {
		return Address{}, fmt.Errorf("invalid account hash %q", hashPart)
	}
	addr := Address{Workchain: int8(wc)}
	copy(addr.Hash[:], raw)
	return addr, nil
}

func parseFriendly(s string) (Address, error) {
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Address{}, fmt.Errorf("address is not base64: %w", err)
		}
	}
	if len(data) != 36 {
		return Address{}, fmt.Errorf("friendly address must be 36 bytes, got %d", len(data))
	}

	tag := data[0] &^ tagTestnetFlag
	if tag != tagBounceable && tag != tagNonBounceable {
		return Address{}, fmt.Errorf("unknown address tag %#x", data[0])
	}

	want := binary.BigEndian.Uint16(data[34:36])
	if crc16(data[:34]) != want {
		return Address{}, fmt.Errorf("address checksum mismatch")
	}

	addr := Address{Workchain: int8(data[1])}
	copy(addr.Hash[:], data[2:34])
	return addr, nil
}

// Raw returns the canonical "workchain:hex" representation. Comparing Raw
// strings is the only safe equality check across textual encodings.
func (a Address) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// Friendly returns the user-friendly base64url representation.
func (a Address) Friendly(bounceable, testnet bool) string {
	buf := make([]byte, 36)
	if bounceable {
		buf[0] = tagBounceable
	} else {
		buf[0] = tagNonBounceable
	}
	if testnet {
		buf[0] |= tagTestnetFlag
	}
	buf[1] = byte(a.Workchain)
	copy(buf[2:34], a.Hash[:])
	binary.BigEndian.PutUint16(buf[34:36], crc16(buf[:34]))
	return base64.URLEncoding.EncodeToString(buf)
}

// Equal reports whether two addresses refer to the same account.
func (a Address) Equal(b Address) bool {
	return a.Workchain == b.Workchain && a.Hash == b.Hash
}

func (a Address) String() string { return a.Raw() }

// crc16 implements CRC-16/XMODEM as used by friendly address encoding.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
