package liveness

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// codeLength is the number of characters in a challenge code. Six characters
// over a 36-symbol alphabet is enough entropy for a 400-second window.
const codeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxUsableByte is the largest multiple of the alphabet size that fits in a
// byte. Bytes at or above it are discarded; folding them in through modulo
// would make the first few symbols more likely than the rest.
const maxUsableByte = byte(256 / len(codeAlphabet) * len(codeAlphabet))

// generateCode draws a challenge code from crypto/rand. A predictable source
// (counter, math/rand) would let an attacker pre-record responses.
func generateCode() (string, error) {
	code := make([]byte, 0, codeLength)
	buf := make([]byte, 2*codeLength)
	for len(code) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("liveness: failed to draw challenge code: %w", err)
		}
		code = appendCodeChars(code, buf)
	}
	return string(code), nil
}

// appendCodeChars maps random bytes onto the code alphabet with rejection
// sampling, stopping at codeLength.
func appendCodeChars(code, raw []byte) []byte {
	for _, b := range raw {
		if len(code) == codeLength {
			break
		}
		if b >= maxUsableByte {
			continue
		}
		code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return code
}

// hashCode produces the one-way digest stored in place of the plaintext code.
func hashCode(code string) string {
	sum := sha256.Sum256([]byte(normalizeCode(code)))
	return hex.EncodeToString(sum[:])
}

// normalizeCode strips separators and case so a spoken transcription like
// "a3-f 9k" still hashes to the stored digest for "A3F9K".
func normalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// codeMatches compares the submitted code's hash against the stored hash in
// constant time. Hashing first fixes the compared length, so timing reveals
// nothing about how many leading characters matched.
func codeMatches(storedHash, submitted string) bool {
	submittedHash := hashCode(submitted)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(submittedHash)) == 1
}
