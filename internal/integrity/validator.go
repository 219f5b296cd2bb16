// Package integrity gates media into the analysis pipeline. Content whose
// checksum disagrees with the declared value never reaches scoring.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrIntegrityMismatch is returned when the computed checksum disagrees
	// with the declared one.
	ErrIntegrityMismatch = errors.New("media checksum mismatch")

	// ErrUnreadableMedia is returned when the media content cannot be read.
	ErrUnreadableMedia = errors.New("media content unreadable")

	// ErrInvalidChecksum is returned when the declared checksum is not a
	// valid hex-encoded sha256 digest.
	ErrInvalidChecksum = errors.New("declared checksum malformed")
)

// DefaultTimeout bounds a single checksum pass. Checksumming is proportional
// to media size; a stuck reader must fail the pipeline, not hang it.
const DefaultTimeout = 30 * time.Second

const chunkSize = 64 * 1024

// Validator computes and checks content checksums.
type Validator struct {
	timeout time.Duration
}

// NewValidator creates a Validator with the given per-verification timeout.
// Zero or negative means DefaultTimeout.
func NewValidator(timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Validator{timeout: timeout}
}

// Verify reads the media content, computes its sha256 digest and compares it
// to declaredChecksum (hex, case-insensitive). It returns nil on a match,
// ErrIntegrityMismatch on disagreement, ErrUnreadableMedia when reading
// fails, and the context error when the deadline trips mid-checksum.
func (v *Validator) Verify(ctx context.Context, content io.Reader, declaredChecksum string) error {
	declared := strings.ToLower(strings.TrimSpace(declaredChecksum))
	if len(declared) != hex.EncodedLen(sha256.Size) {
		return fmt.Errorf("integrity: %w: %q", ErrInvalidChecksum, declaredChecksum)
	}
	if _, err := hex.DecodeString(declared); err != nil {
		return fmt.Errorf("integrity: %w: %q", ErrInvalidChecksum, declaredChecksum)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("integrity: checksum aborted: %w", err)
		}
		n, err := content.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("integrity: %w: %v", ErrUnreadableMedia, err)
		}
	}

	computed := hex.EncodeToString(h.Sum(nil))
	if computed != declared {
		return fmt.Errorf("integrity: %w: declared %s, computed %s", ErrIntegrityMismatch, declared, computed)
	}
	return nil
}

// Checksum computes the hex sha256 digest of content, for callers declaring
// checksums on their own media.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
