// Package token computes and parses the short keyed digests written onto
// NFC tag text records. Pure functions, safe for concurrent use.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLen is the truncated digest length in hex characters (48 bits).
	// NFC text records are small, so the MAC is truncated: 12 hex chars keep
	// the record short while leaving forgery and accidental collision odds
	// negligible for competition-scale tag/team counts. Tunable via
	// DIGEST_LEN; shortening it trades forgery resistance for tag space.
	DefaultLen = 12

	// MinLen is the floor below which truncation is refused.
	MinLen = 4

	maxLen = sha256.Size * 2
)

// ErrFormat reports a tag record that does not parse. Wrapped errors carry
// the specific reason; callers match with errors.Is(err, ErrFormat).
var ErrFormat = errors.New("malformed digest record")

// Digest is one parsed tag record: the counter context it was issued under
// and the truncated MAC.
type Digest struct {
	Counter int64  `json:"counter"`
	MAC     string `json:"mac"`
}

// String renders the text record written onto the tag: "<counter>:<mac>".
func (d Digest) String() string {
	return strconv.FormatInt(d.Counter, 10) + ":" + d.MAC
}

// NormalizeUID strips separators and whitespace from a reader-supplied UID
// and uppercases it, so "04:a1:b2" and "04A1B2" digest identically.
func NormalizeUID(uid string) string {
	uid = strings.ReplaceAll(uid, ":", "")
	uid = strings.ReplaceAll(uid, "-", "")
	uid = strings.ReplaceAll(uid, " ", "")
	return strings.ToUpper(strings.TrimSpace(uid))
}

// Compute derives the digest for a tag sighting: HMAC-SHA256 over
// "<dev_num>|<uid>|<counter>" keyed with the device secret, hex encoded and
// truncated to n characters. Identical inputs always produce identical
// output; changing any input changes it.
func Compute(tagUID string, devNum int, counter int64, secret string, n int) Digest {
	n = clampLen(n)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d|%s|%d", devNum, NormalizeUID(tagUID), counter)
	sum := hex.EncodeToString(mac.Sum(nil))
	return Digest{Counter: counter, MAC: sum[:n]}
}

// Parse validates a raw tag record against the expected MAC length n.
// Uppercase MACs are accepted and normalized; anything else malformed
// returns an error wrapping ErrFormat.
func Parse(raw string, n int) (Digest, error) {
	n = clampLen(n)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Digest{}, fmt.Errorf("%w: empty record", ErrFormat)
	}

	sep := strings.IndexByte(raw, ':')
	if sep < 0 {
		return Digest{}, fmt.Errorf("%w: missing counter separator", ErrFormat)
	}

	counter, err := strconv.ParseInt(raw[:sep], 10, 64)
	if err != nil || counter < 0 {
		return Digest{}, fmt.Errorf("%w: bad counter %q", ErrFormat, raw[:sep])
	}

	mac := strings.ToLower(raw[sep+1:])
	if len(mac) != n {
		return Digest{}, fmt.Errorf("%w: digest length %d, want %d", ErrFormat, len(mac), n)
	}
	for _, c := range mac {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return Digest{}, fmt.Errorf("%w: non-hex digest", ErrFormat)
		}
	}

	return Digest{Counter: counter, MAC: mac}, nil
}

func clampLen(n int) int {
	if n < MinLen {
		return MinLen
	}
	if n > maxLen {
		return maxLen
	}
	return n
}
