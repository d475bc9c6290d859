package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"registra/internal/audit"
	"registra/internal/collaborator/notify"
	"registra/internal/verification/models"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
	"registra/pkg/secrets"
)

// RequestDomainChallenge creates a pending challenge for the entity/domain
// pair. The one-pending-per-pair invariant is store-enforced: of two
// concurrent requests exactly one wins.
func (s *Service) RequestDomainChallenge(ctx context.Context, entityID domain.EntityID, domainName string) (*models.DomainVerificationChallenge, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

	var challenge *models.DomainVerificationChallenge
	err := s.tx.RunInTx(ctx, entityID.String(), func(txCtx context.Context) error {
		entity, err := s.entities.FindByID(txCtx, entityID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "legal entity not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load legal entity")
		}
		if !entity.IsActive() {
			return dErrors.New(dErrors.CodePrecondition, "entity must be active to request domain verification")
		}

		token, err := secrets.GenerateToken()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate challenge token")
		}
		c, err := models.NewDomainVerificationChallenge(
			domain.ChallengeID(uuid.New()), entityID, domainName, token,
			s.cfg.ChallengeTTL, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}

		if err := s.challenges.Create(txCtx, c); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a pending challenge already exists for this domain")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create challenge")
		}

		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventChallengeRequested,
			Severity:     audit.SeverityInfo,
			ResourceType: "domain_challenge",
			ResourceID:   c.ID.String(),
			Action:       "request",
			Result:       "success",
			Detail: map[string]any{
				"entity_id":   entityID.String(),
				"domain":      c.Domain,
				"record_name": c.RecordName,
				"expires_at":  c.ExpiresAt,
			},
		}); err != nil {
			return err
		}
		challenge = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ChallengeCreated(ctx, notify.ChallengeNotification{
			EntityID:   challenge.EntityID,
			Domain:     challenge.Domain,
			RecordName: challenge.RecordName,
			Token:      challenge.Token,
		})
	}
	return challenge, nil
}

// SubmitDomainProof evaluates observed TXT records against a pending
// challenge. A matching token verifies the challenge and lifts the entity
// to the domain tier with a fresh re-verification deadline. A miss burns
// one attempt; at the ceiling the challenge fails terminally. A challenge
// past its deadline expires on this evaluation rather than waiting for the
// sweep.
//
// A non-matching proof is an outcome, not an error: the returned challenge
// carries the updated attempt count or terminal status.
func (s *Service) SubmitDomainProof(ctx context.Context, challengeID domain.ChallengeID, observedRecords []string) (*models.DomainVerificationChallenge, error) {
	if challengeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "challenge id is required")
	}

	var challenge *models.DomainVerificationChallenge
	var expiredNow bool
	err := s.tx.RunInTx(ctx, challengeID.String(), func(txCtx context.Context) error {
		c, err := s.challenges.FindByID(txCtx, challengeID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "challenge not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load challenge")
		}
		if err := c.CanEvaluate(); err != nil {
			return err
		}

		now := requestcontext.Now(txCtx)
		if c.IsExpired(now) {
			// The expiry transition must commit even though the submission
			// is rejected, so the rejection is raised after the transaction.
			expiredNow = true
			return s.expireChallenge(txCtx, c)
		}

		if !c.MatchesProof(observedRecords) {
			c.ApplyFailedAttempt(s.cfg.AttemptCeiling, now)
			if err := s.challenges.Update(txCtx, c); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update challenge")
			}
			if err := s.auditor.Record(txCtx, audit.Event{
				Type:         audit.EventDomainProofFailed,
				Severity:     audit.SeverityWarning,
				ResourceType: "domain_challenge",
				ResourceID:   c.ID.String(),
				Action:       "submit_proof",
				Result:       "failed",
				Detail: map[string]any{
					"entity_id": c.EntityID.String(),
					"domain":    c.Domain,
					"attempts":  c.Attempts,
					"terminal":  c.Status == models.ChallengeFailed,
				},
			}); err != nil {
				return err
			}
			s.incVerification("dns", "failed")
			challenge = c
			return nil
		}

		entity, err := s.entities.FindByID(txCtx, c.EntityID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "legal entity not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load legal entity")
		}

		c.ApplyVerified(now)
		if err := s.challenges.Update(txCtx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update challenge")
		}
		entity.ApplyDomainVerification(now, s.cfg.ReverifyAfter)
		if err := s.entities.Update(txCtx, entity); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update legal entity")
		}

		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventDomainProofVerified,
			Severity:     audit.SeverityInfo,
			ResourceType: "domain_challenge",
			ResourceID:   c.ID.String(),
			Action:       "submit_proof",
			Result:       "success",
			Detail: map[string]any{
				"entity_id":       c.EntityID.String(),
				"domain":          c.Domain,
				"tier":            int(entity.AuthTier),
				"reverify_due_at": entity.ReverifyDueAt,
			},
		}); err != nil {
			return err
		}
		s.incVerification("dns", "verified")
		challenge = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expiredNow {
		return nil, dErrors.New(dErrors.CodePrecondition, "challenge has expired; create a new challenge to retry")
	}

	if challenge.Status == models.ChallengeVerified {
		s.invalidateTrust(ctx, challenge.EntityID)
	}
	return challenge, nil
}

// ExpireDueChallenges is the eager sweep an external scheduler drives; the
// lazy check in SubmitDomainProof covers challenges it has not reached yet.
func (s *Service) ExpireDueChallenges(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := s.challenges.ListExpiredPending(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list expired challenges")
	}

	swept := 0
	for i := range due {
		c := due[i]
		err := s.tx.RunInTx(ctx, c.ID.String(), func(txCtx context.Context) error {
			// Re-read under the lock; a concurrent proof may have resolved it.
			fresh, err := s.challenges.FindByID(txCtx, c.ID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil
				}
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load challenge")
			}
			if !fresh.IsPending() || !fresh.IsExpired(requestcontext.Now(txCtx)) {
				return nil
			}
			if err := s.expireChallenge(txCtx, fresh); err != nil {
				return err
			}
			swept++
			return nil
		})
		if err != nil {
			return swept, err
		}
	}

	if s.metrics != nil && swept > 0 {
		s.metrics.AddChallengesSwept(float64(swept))
	}
	return swept, nil
}

func (s *Service) expireChallenge(ctx context.Context, c *models.DomainVerificationChallenge) error {
	c.ApplyExpired(requestcontext.Now(ctx))
	if err := s.challenges.Update(ctx, c); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to expire challenge")
	}
	if err := s.auditor.Record(ctx, audit.Event{
		Type:         audit.EventChallengeExpired,
		Severity:     audit.SeverityWarning,
		ResourceType: "domain_challenge",
		ResourceID:   c.ID.String(),
		Action:       "expire",
		Result:       "success",
		Detail: map[string]any{
			"entity_id": c.EntityID.String(),
			"domain":    c.Domain,
		},
	}); err != nil {
		return err
	}
	s.incVerification("dns", "expired")
	return nil
}
