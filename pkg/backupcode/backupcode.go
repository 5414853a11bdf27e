package backupcode

import (
	"crypto/rand"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBatchSize is the number of codes issued per batch.
	DefaultBatchSize = 10

	// codeLength is the number of alphabet characters per code, giving
	// log2(31^10) ≈ 49.5 bits of entropy against offline guessing.
	codeLength = 10

	// alphabet excludes visually ambiguous characters (0/O, 1/I/L) so codes
	// survive being read aloud or copied by hand.
	alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// Generate creates count cryptographically secure single-use recovery codes.
// Codes are formatted as XXXXX-XXXXX for readability; the separator is
// ignored during verification. The plaintext codes are returned exactly once
// and must never be persisted.
func Generate(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCodeCount
	}

	codes := make([]string, count)
	for i := range count {
		code, err := randomCode()
		if err != nil {
			return nil, errors.Join(ErrGenerationFailed, err)
		}
		codes[i] = code[:codeLength/2] + "-" + code[codeLength/2:]
	}
	return codes, nil
}

// randomCode samples codeLength characters from the alphabet using rejection
// sampling to avoid modulo bias.
func randomCode() (string, error) {
	// Largest multiple of len(alphabet) below 256; bytes at or above it are discarded.
	limit := byte(256 / len(alphabet) * len(alphabet))

	var b strings.Builder
	b.Grow(codeLength)

	buf := make([]byte, codeLength*2)
	for b.Len() < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			b.WriteByte(alphabet[int(c)%len(alphabet)])
			if b.Len() == codeLength {
				break
			}
		}
	}
	return b.String(), nil
}

// Normalize returns the canonical form of a submitted code: upper-cased with
// separators and whitespace stripped. Hashing and verification both normalize
// first so user formatting never affects matching.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// Hash produces a bcrypt hash of the normalized code for storage. bcrypt is
// deliberately slow, which keeps offline guessing against a leaked database
// expensive.
func Hash(code string) ([]byte, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return nil, ErrEmptyCode
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(normalized), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Join(ErrHashingFailed, err)
	}
	return hash, nil
}

// Verify reports whether code matches the stored bcrypt hash.
func Verify(code string, hash []byte) bool {
	normalized := Normalize(code)
	if normalized == "" || len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(normalized)) == nil
}
