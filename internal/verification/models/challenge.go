package models

import (
	"strings"
	"time"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/secrets"
)

// ChallengeStatus is the challenge lifecycle. pending is the only live
// state; verified, expired, and failed are terminal. Retrying means
// creating a new challenge.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeVerified ChallengeStatus = "verified"
	ChallengeExpired  ChallengeStatus = "expired"
	ChallengeFailed   ChallengeStatus = "failed"
)

// RecordPrefix is prepended to the domain to form the TXT record name the
// proof must appear under.
const RecordPrefix = "_registra-challenge."

// DomainVerificationChallenge is a one-time proof token bound to an
// (entity, domain) pair. At most one pending challenge exists per pair.
// Only the token's hash is persisted; the plaintext lives on the struct at
// creation time, is handed to the caller once, and is gone after that.
type DomainVerificationChallenge struct {
	ID         domain.ChallengeID
	EntityID   domain.EntityID
	Domain     string
	Token      string
	TokenHash  string
	RecordName string
	Status     ChallengeStatus
	Attempts   int
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewDomainVerificationChallenge(id domain.ChallengeID, entityID domain.EntityID, domainName, token string, ttl time.Duration, now time.Time) (*DomainVerificationChallenge, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge domain cannot be empty")
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge token cannot be empty")
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		return nil, err
	}
	return &DomainVerificationChallenge{
		ID:         id,
		EntityID:   entityID,
		Domain:     domainName,
		Token:      token,
		TokenHash:  hash,
		RecordName: RecordPrefix + domainName,
		Status:     ChallengePending,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (c *DomainVerificationChallenge) IsPending() bool { return c.Status == ChallengePending }

func (c *DomainVerificationChallenge) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CanEvaluate rejects proof submission against anything but a live
// pending challenge. Expiry is checked separately so callers can apply the
// lazy-expiry transition first.
func (c *DomainVerificationChallenge) CanEvaluate() error {
	if !c.IsPending() {
		return dErrors.Newf(dErrors.CodePrecondition,
			"challenge is %s; create a new challenge to retry", c.Status)
	}
	return nil
}

// MatchesProof reports whether the expected token appears among the
// observed TXT records. Records are trimmed and checked against the stored
// hash, so the match works on challenges loaded from the store where the
// plaintext is no longer available.
func (c *DomainVerificationChallenge) MatchesProof(observedRecords []string) bool {
	for _, record := range observedRecords {
		if secrets.Verify(strings.TrimSpace(record), c.TokenHash) == nil {
			return true
		}
	}
	return false
}

func (c *DomainVerificationChallenge) ApplyVerified(now time.Time) {
	c.Status = ChallengeVerified
	c.UpdatedAt = now
}

// ApplyFailedAttempt records one unsuccessful proof. Once the ceiling is
// reached the challenge moves to the terminal failed state.
func (c *DomainVerificationChallenge) ApplyFailedAttempt(ceiling int, now time.Time) {
	c.Attempts++
	if c.Attempts >= ceiling {
		c.Status = ChallengeFailed
	}
	c.UpdatedAt = now
}

func (c *DomainVerificationChallenge) ApplyExpired(now time.Time) {
	c.Status = ChallengeExpired
	c.UpdatedAt = now
}
