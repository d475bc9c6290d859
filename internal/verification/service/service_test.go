package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registra/internal/audit"
	auditmemory "registra/internal/audit/store/memory"
	identitymodels "registra/internal/identity/models"
	entitystore "registra/internal/identity/store/entity"
	"registra/internal/platform/txn"
	"registra/internal/verification/models"
	challengestore "registra/internal/verification/store/challenge"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/testutil"

	"github.com/google/uuid"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	entities *entitystore.InMemory
	events   *auditmemory.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	events := auditmemory.NewStore()
	mappings := auditmemory.NewMappingStore()
	recorder := audit.NewRecorder(events, mappings, audit.NewPseudonymizer([]byte("test-key"), mappings))
	entities := entitystore.NewInMemory()
	svc := New(challengestore.NewInMemory(), entities, recorder, txn.NewSharded(), cfg)
	return &fixture{svc: svc, entities: entities, events: events}
}

func (f *fixture) activeEntity(t *testing.T) *identitymodels.LegalEntity {
	t.Helper()
	e, err := identitymodels.NewLegalEntity(
		domain.EntityID(uuid.New()), domain.PartyID(uuid.New()),
		"Baltic Clearing OY", "Helsinki", "baltic.example", fixedNow)
	require.NoError(t, err)
	require.NoError(t, e.ApplyStatus(identitymodels.StatusActive, fixedNow))
	require.NoError(t, f.entities.Create(testutil.Ctx(fixedNow, ""), e))
	return e
}

func TestRequestDomainChallenge(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "ops@baltic.example")

	t.Run("creates pending challenge with record name and deadline", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)

		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "Baltic.Example")
		require.NoError(t, err)
		assert.Equal(t, models.ChallengePending, c.Status)
		assert.Equal(t, "_registra-challenge.baltic.example", c.RecordName)
		assert.NotEmpty(t, c.Token)
		assert.Equal(t, fixedNow.Add(72*time.Hour), c.ExpiresAt)
	})

	t.Run("stored challenge keeps only the token hash", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)

		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)

		stored, err := f.svc.challenges.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Token)
		assert.NotEmpty(t, stored.TokenHash)
		assert.True(t, stored.MatchesProof([]string{c.Token}))
	})

	t.Run("second pending challenge for the same pair conflicts", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)

		_, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)
		_, err = f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		// A different domain is a different pair.
		_, err = f.svc.RequestDomainChallenge(ctx, e.ID, "other.example")
		require.NoError(t, err)
	})

	t.Run("inactive entity cannot request", func(t *testing.T) {
		f := newFixture(t, Config{})
		e, err := identitymodels.NewLegalEntity(
			domain.EntityID(uuid.New()), domain.PartyID(uuid.New()),
			"Pending GmbH", "", "pending.example", fixedNow)
		require.NoError(t, err)
		require.NoError(t, f.entities.Create(ctx, e))

		_, err = f.svc.RequestDomainChallenge(ctx, e.ID, "pending.example")
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("unknown entity", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.RequestDomainChallenge(ctx, domain.EntityID(uuid.New()), "ghost.example")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestSubmitDomainProof(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "ops@baltic.example")

	t.Run("matching token verifies and lifts the entity to tier 2", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)

		verified, err := f.svc.SubmitDomainProof(ctx, c.ID, []string{"stale-token", c.Token})
		require.NoError(t, err)
		assert.Equal(t, models.ChallengeVerified, verified.Status)

		updated, err := f.entities.FindByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, identitymodels.TierDomain, updated.AuthTier)
		assert.Equal(t, identitymodels.MethodDomainVerification, updated.AuthMethod)
		require.NotNil(t, updated.DNSVerifiedAt)
		assert.Equal(t, fixedNow, *updated.DNSVerifiedAt)
		require.NotNil(t, updated.ReverifyDueAt)
		assert.Equal(t, fixedNow.Add(90*24*time.Hour), *updated.ReverifyDueAt)
	})

	t.Run("mismatch burns attempts until the ceiling fails the challenge", func(t *testing.T) {
		f := newFixture(t, Config{AttemptCeiling: 2})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)

		after, err := f.svc.SubmitDomainProof(ctx, c.ID, []string{"wrong"})
		require.NoError(t, err)
		assert.Equal(t, models.ChallengePending, after.Status)
		assert.Equal(t, 1, after.Attempts)

		after, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{"still wrong"})
		require.NoError(t, err)
		assert.Equal(t, models.ChallengeFailed, after.Status)

		_, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{c.Token})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))

		// The entity stays on its original tier.
		unchanged, err := f.entities.FindByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, identitymodels.TierEmail, unchanged.AuthTier)
	})

	t.Run("expired challenge transitions lazily and rejects the proof", func(t *testing.T) {
		f := newFixture(t, Config{ChallengeTTL: time.Hour})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)

		late := testutil.Ctx(fixedNow.Add(2*time.Hour), "ops@baltic.example")
		_, err = f.svc.SubmitDomainProof(late, c.ID, []string{c.Token})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))

		stored, err := f.svc.challenges.FindByID(late, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ChallengeExpired, stored.Status)
	})

	t.Run("failed proof is audited as a warning", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)

		_, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{"wrong"})
		require.NoError(t, err)

		events := f.events.All()
		last := events[len(events)-1]
		assert.Equal(t, audit.EventDomainProofFailed, last.Type)
		assert.Equal(t, audit.SeverityWarning, last.Severity)
	})
}

func TestAcceptStrongAssurance(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "assurance-gw")

	t.Run("sets tier 1 and supersedes domain verification", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)
		_, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{c.Token})
		require.NoError(t, err)

		updated, err := f.svc.AcceptStrongAssurance(ctx, e.ID, "eidas:FI:123", "high")
		require.NoError(t, err)
		assert.Equal(t, identitymodels.TierStrong, updated.AuthTier)
		assert.Equal(t, identitymodels.MethodStrongAssurance, updated.AuthMethod)
	})

	t.Run("replay is a state no-op but still audited", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)

		_, err := f.svc.AcceptStrongAssurance(ctx, e.ID, "eidas:FI:123", "high")
		require.NoError(t, err)
		before := len(f.events.All())

		replayed, err := f.svc.AcceptStrongAssurance(ctx, e.ID, "eidas:FI:123", "high")
		require.NoError(t, err)
		assert.Equal(t, identitymodels.TierStrong, replayed.AuthTier)
		assert.Len(t, f.events.All(), before+1)
	})

	t.Run("missing identifier", func(t *testing.T) {
		f := newFixture(t, Config{})
		e := f.activeEntity(t)
		_, err := f.svc.AcceptStrongAssurance(ctx, e.ID, "", "high")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestDowngradeToEmailTier(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "sweeper")
	f := newFixture(t, Config{})
	e := f.activeEntity(t)
	c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
	require.NoError(t, err)
	_, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{c.Token})
	require.NoError(t, err)

	downgraded, err := f.svc.DowngradeToEmailTier(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, identitymodels.TierEmail, downgraded.AuthTier)
	assert.Nil(t, downgraded.ReverifyDueAt)
}

func TestSweeps(t *testing.T) {
	t.Run("ExpireDueChallenges expires only overdue pending challenges", func(t *testing.T) {
		ctx := testutil.Ctx(fixedNow, "sweeper")
		f := newFixture(t, Config{ChallengeTTL: time.Hour})
		e := f.activeEntity(t)
		overdue, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)
		fresh, err := f.svc.RequestDomainChallenge(ctx, e.ID, "other.example")
		require.NoError(t, err)

		// Resolving the second challenge before the sweep leaves only the
		// first one pending and overdue.
		_, err = f.svc.SubmitDomainProof(ctx, fresh.ID, []string{fresh.Token})
		require.NoError(t, err)

		late := testutil.Ctx(fixedNow.Add(2*time.Hour), "sweeper")
		swept, err := f.svc.ExpireDueChallenges(late)
		require.NoError(t, err)
		assert.Equal(t, 1, swept)

		stored, err := f.svc.challenges.FindByID(late, overdue.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ChallengeExpired, stored.Status)

		// Second sweep finds nothing.
		swept, err = f.svc.ExpireDueChallenges(late)
		require.NoError(t, err)
		assert.Equal(t, 0, swept)
	})

	t.Run("DowngradeOverdueEntities drops overdue entities to tier 3", func(t *testing.T) {
		ctx := testutil.Ctx(fixedNow, "sweeper")
		f := newFixture(t, Config{})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)
		_, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{c.Token})
		require.NoError(t, err)

		early := testutil.Ctx(fixedNow.Add(24*time.Hour), "sweeper")
		downgraded, err := f.svc.DowngradeOverdueEntities(early)
		require.NoError(t, err)
		assert.Equal(t, 0, downgraded)

		late := testutil.Ctx(fixedNow.Add(91*24*time.Hour), "sweeper")
		downgraded, err = f.svc.DowngradeOverdueEntities(late)
		require.NoError(t, err)
		assert.Equal(t, 1, downgraded)

		updated, err := f.entities.FindByID(late, e.ID)
		require.NoError(t, err)
		assert.Equal(t, identitymodels.TierEmail, updated.AuthTier)
	})

	t.Run("sweep leaves strongly assured entities alone", func(t *testing.T) {
		ctx := testutil.Ctx(fixedNow, "sweeper")
		f := newFixture(t, Config{})
		e := f.activeEntity(t)
		c, err := f.svc.RequestDomainChallenge(ctx, e.ID, "baltic.example")
		require.NoError(t, err)
		_, err = f.svc.SubmitDomainProof(ctx, c.ID, []string{c.Token})
		require.NoError(t, err)

		_, err = f.svc.AcceptStrongAssurance(ctx, e.ID, "eidas:ref-1", "high")
		require.NoError(t, err)

		late := testutil.Ctx(fixedNow.Add(91*24*time.Hour), "sweeper")
		downgraded, err := f.svc.DowngradeOverdueEntities(late)
		require.NoError(t, err)
		assert.Equal(t, 0, downgraded)

		updated, err := f.entities.FindByID(late, e.ID)
		require.NoError(t, err)
		assert.Equal(t, identitymodels.TierStrong, updated.AuthTier)
		assert.Equal(t, identitymodels.MethodStrongAssurance, updated.AuthMethod)
	})
}
