package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Pseudonymizer applies a deterministic keyed hash to user-identifying
// values (emails, IPs, admin subjects) before they are written to the audit
// log. The reverse mapping is persisted separately; reading it back goes
// through Recorder.Reveal so every access is itself audited.
type Pseudonymizer struct {
	key      []byte
	mappings MappingStore
}

func NewPseudonymizer(key []byte, mappings MappingStore) *Pseudonymizer {
	return &Pseudonymizer{key: key, mappings: mappings}
}

// Digest returns the HMAC-SHA256 pseudonym for raw. Deterministic: the same
// input always yields the same pseudonym, so events remain correlatable.
func (p *Pseudonymizer) Digest(raw string) string {
	mac := hmac.New(sha256.New, p.key)
	mac.Write([]byte(raw))
	return "pseud:" + hex.EncodeToString(mac.Sum(nil))
}

// Pseudonymize digests raw and records the reverse mapping. Empty input maps
// to the empty pseudonym so anonymous events stay anonymous.
func (p *Pseudonymizer) Pseudonymize(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	digest := p.Digest(raw)
	if err := p.mappings.Save(ctx, digest, raw); err != nil {
		return "", fmt.Errorf("save pseudonym mapping: %w", err)
	}
	return digest, nil
}
