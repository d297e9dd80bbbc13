// Package wallet holds the rules for wallet-address identities: every
// boundary compares them lowercased, and room ids are derived from the
// sorted pair.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/crypto/sha3"
)

const roomPrefix = "room_"

var (
	ErrEmpty    = errors.New("wallet address is empty")
	ErrFormat   = errors.New("wallet address must be 0x followed by 40 hex characters")
	ErrChecksum = errors.New("wallet address has an invalid EIP-55 checksum")
)

// Normalize trims and lowercases an address.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// RoomID derives the chat room id for a pair of wallets. Argument order and
// casing do not matter.
func RoomID(a, b string) string {
	sorted := lo.Map([]string{a, b}, func(w string, _ int) string { return Normalize(w) })
	sort.Strings(sorted)
	return roomPrefix + sorted[0] + "_" + sorted[1]
}

// Participants returns the normalized, sorted pair stored on a room.
func Participants(a, b string) []string {
	users := []string{Normalize(a), Normalize(b)}
	sort.Strings(users)
	return users
}

// Validate checks the address shape. All-lower and all-upper hex are accepted
// as-is; mixed case must carry a valid EIP-55 checksum.
func Validate(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ErrEmpty
	}
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return ErrFormat
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return ErrFormat
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if Checksum(addr) != "0x"+body {
		return fmt.Errorf("%w: %s", ErrChecksum, addr)
	}
	return nil
}

// Checksum returns the EIP-55 mixed-case form of a hex address.
func Checksum(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}
