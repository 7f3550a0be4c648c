// Package device provides the stable per-profile device identity attached
// to every panel request. The identity is created once, persisted locally,
// and read-only for the rest of the process lifetime.
package device

import (
	"encoding/hex"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// maxLabelLen bounds the human-readable label sent in request headers.
const maxLabelLen = 64

// Identity is an opaque stable device identifier plus a human-readable
// label. The ID is derived from a random seed, never from raw hardware
// attributes alone, so it cannot be reversed into host details.
type Identity struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// NewIdentity derives a fresh identity. If label is empty the hostname is
// used. The ID mixes a random seed with the hostname through BLAKE2b so
// identities stay distinct even across cloned profiles.
func NewIdentity(label string) (Identity, error) {
	seed, err := uuid.NewRandom()
	if err != nil {
		return Identity{}, err
	}
	host, _ := os.Hostname()

	sum := blake2b.Sum256(append(seed[:], host...))
	if label == "" {
		label = host
	}
	return Identity{
		ID:    hex.EncodeToString(sum[:16]),
		Label: NormalizeLabel(label),
	}, nil
}

// NormalizeLabel canonicalizes a device label: NFC normalization, trimmed
// and collapsed whitespace, truncated to a header-friendly length.
func NormalizeLabel(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLabelLen {
		// Cut on a rune boundary so the label stays valid UTF-8.
		cut := maxLabelLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
