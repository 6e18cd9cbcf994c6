// Package tokens generates and validates the opaque tokens handed out for a test order.
//
// CTA tokens are typed in by hand, so they use the lowercase Crockford base-32 alphabet
// (no i, l, o or u) and end in a Damm check character. Polling and submission tokens are
// only ever handled by the app and are random UUIDs.
package tokens

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

	// CtaTokenLength includes the trailing check character.
	CtaTokenLength = 8
)

var alphabetIndex = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		idx[alphabet[i]] = int8(i)
	}
	return idx
}()

// Generator draws tokens from a cryptographically secure source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewCtaToken returns an 8 character token: 7 random symbols and a check symbol.
func (g *Generator) NewCtaToken() string {
	buf := make([]byte, CtaTokenLength-1)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("tokens: read random bytes: %v", err))
	}

	out := make([]byte, CtaTokenLength)
	for i, b := range buf {
		// 256 is a multiple of 32, so masking keeps the draw uniform
		out[i] = alphabet[b&0x1f]
	}
	out[CtaTokenLength-1] = alphabet[checkSymbol(out[:CtaTokenLength-1])]
	return string(out)
}

// NewPollingToken returns a random UUID used to poll for a result.
func (g *Generator) NewPollingToken() string {
	return uuid.NewString()
}

// NewSubmissionToken returns a random UUID used by the diagnosis key submission flow.
func (g *Generator) NewSubmissionToken() string {
	return uuid.NewString()
}

// NormalizeCtaToken lowercases and trims a user supplied CTA token.
func NormalizeCtaToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidCtaToken reports whether s (after normalisation) has the CTA length, charset and
// a correct check symbol.
func ValidCtaToken(s string) bool {
	s = NormalizeCtaToken(s)
	if len(s) != CtaTokenLength {
		return false
	}
	interim := 0
	for i := 0; i < len(s); i++ {
		d := alphabetIndex[s[i]]
		if d < 0 {
			return false
		}
		interim = dammStep(interim, int(d))
	}
	return interim == 0
}

// ValidPollingToken reports whether s looks like a polling token.
func ValidPollingToken(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// checkSymbol returns the index of the symbol that brings the Damm fold of digits to zero.
func checkSymbol(digits []byte) int {
	interim := 0
	for _, c := range digits {
		interim = dammStep(interim, int(alphabetIndex[c]))
	}
	return double(interim)
}

// dammStep is the quasigroup operation a*b = 2a xor b over GF(32). It is weakly totally
// anti-symmetric, so every single substitution and adjacent transposition is detected.
func dammStep(interim, digit int) int {
	return double(interim) ^ digit
}

// double multiplies by x in GF(2^5) modulo x^5 + x^2 + 1.
func double(a int) int {
	a <<= 1
	if a&0x20 != 0 {
		a ^= 0x25
	}
	return a
}
