// Package querykey derives cache keys from structured query parameters and
// scores queries for relative cost.
package querykey

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxEncodedLength bounds the encoded parameter segment of a key. Longer
// encodings are replaced by a digest.
const MaxEncodedLength = 200

// Pagination is the optional page/limit pair appended to list keys
type Pagination struct {
	Page  int `json:"page" yaml:"page"`
	Limit int `json:"limit" yaml:"limit"`
}

// Suffix renders the pagination segment of a key
func (p Pagination) Suffix() string {
	return fmt.Sprintf("page:%d-limit:%d", p.Page, p.Limit)
}

// Canonical serializes v as JSON with object keys sorted at every depth, so
// two values holding the same pairs produce the same string regardless of
// construction order.
func Canonical(v interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
		return "{}", nil
	}
	// encoding/json writes map keys in sorted order
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize query parameters: %w", err)
	}
	return string(data), nil
}

// Encode turns a canonical string into an ASCII-safe key segment
func Encode(canonical string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(canonical))
	if len(enc) <= MaxEncodedLength {
		return enc
	}
	sum := sha256.Sum256([]byte(canonical))
	return "h" + hex.EncodeToString(sum[:])
}

// Generate returns {resource}:{encoded filters}, followed by the pagination
// suffix when p is non-nil. Filters that cannot be serialized fall back to
// their printed form so the call never fails.
func Generate(resource string, filters map[string]interface{}, p *Pagination) string {
	canonical, err := Canonical(filters)
	if err != nil {
		canonical = fmt.Sprintf("%v", filters)
	}

	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte(':')
	b.WriteString(Encode(canonical))
	if p != nil {
		b.WriteByte(':')
		b.WriteString(p.Suffix())
	}
	return b.String()
}
