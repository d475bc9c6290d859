package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"registra/internal/access/models"
	endpointstore "registra/internal/access/store/endpoint"
	grantstore "registra/internal/access/store/grant"
	requeststore "registra/internal/access/store/request"
	"registra/internal/audit"
	auditmemory "registra/internal/audit/store/memory"
	"registra/internal/collaborator/credentials"
	credmock "registra/internal/collaborator/credentials/mock"
	identitymodels "registra/internal/identity/models"
	entitystore "registra/internal/identity/store/entity"
	"registra/internal/platform/txn"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/testutil"
)

var fixedNow = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	entities *entitystore.InMemory
	events   *auditmemory.Store
}

func newFixture(t *testing.T, issuer credentials.Issuer, opts ...Option) *fixture {
	t.Helper()
	events := auditmemory.NewStore()
	mappings := auditmemory.NewMappingStore()
	recorder := audit.NewRecorder(events, mappings, audit.NewPseudonymizer([]byte("test-key"), mappings))
	entities := entitystore.NewInMemory()
	svc := New(
		endpointstore.NewInMemory(), requeststore.NewInMemory(), grantstore.NewInMemory(),
		entities, recorder, txn.NewSharded(), issuer, opts...)
	return &fixture{svc: svc, entities: entities, events: events}
}

func (f *fixture) entity(t *testing.T, status identitymodels.EntityStatus) *identitymodels.LegalEntity {
	t.Helper()
	e, err := identitymodels.NewLegalEntity(
		domain.EntityID(uuid.New()), domain.PartyID(uuid.New()),
		"Fjord Analytics AS", "Oslo", "fjord.example", fixedNow)
	require.NoError(t, err)
	if status != identitymodels.StatusPending {
		require.NoError(t, e.ApplyStatus(status, fixedNow))
	}
	require.NoError(t, f.entities.Create(testutil.Ctx(fixedNow, ""), e))
	return e
}

func (f *fixture) publishedEndpoint(t *testing.T, model models.AccessModel) (*identitymodels.LegalEntity, *models.Endpoint) {
	t.Helper()
	ctx := testutil.Ctx(fixedNow, "provider@fjord.example")
	provider := f.entity(t, identitymodels.StatusActive)
	endpoint, err := f.svc.CreateEndpoint(ctx, CreateEndpointInput{
		EntityID:    provider.ID,
		Name:        "vessel-positions",
		URL:         "https://api.fjord.example/v1/vessels",
		Type:        "rest",
		AccessModel: model,
	})
	require.NoError(t, err)
	endpoint, err = f.svc.PublishEndpoint(ctx, endpoint.ID)
	require.NoError(t, err)
	return provider, endpoint
}

func TestPublishLifecycle(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "provider@fjord.example")

	t.Run("publish requires an active owner", func(t *testing.T) {
		f := newFixture(t, nil)
		pending := f.entity(t, identitymodels.StatusPending)
		endpoint, err := f.svc.CreateEndpoint(ctx, CreateEndpointInput{
			EntityID:    pending.ID,
			Name:        "draft-only",
			URL:         "https://api.fjord.example/v1/draft",
			AccessModel: models.AccessModelRestricted,
		})
		require.NoError(t, err)

		_, err = f.svc.PublishEndpoint(ctx, endpoint.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("published_at survives unpublish and republish", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		require.NotNil(t, endpoint.PublishedAt)
		first := *endpoint.PublishedAt

		later := testutil.Ctx(fixedNow.Add(time.Hour), "provider@fjord.example")
		unpublished, err := f.svc.UnpublishEndpoint(later, endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PublicationUnpublished, unpublished.PublicationStatus)

		// Idempotent second unpublish.
		_, err = f.svc.UnpublishEndpoint(later, endpoint.ID)
		require.NoError(t, err)

		republished, err := f.svc.PublishEndpoint(later, endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, first, *republished.PublishedAt)
	})
}

func TestRequestAccess(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "consumer@baltic.example")

	t.Run("restricted endpoint leaves the request pending", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)

		request, grant, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		require.NoError(t, err)
		assert.Nil(t, grant)
		assert.Equal(t, models.RequestPending, request.Status)
	})

	t.Run("duplicate pending request conflicts", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)

		_, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		require.NoError(t, err)
		_, _, err = f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unpublished endpoint rejects requests", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)
		_, err := f.svc.UnpublishEndpoint(ctx, endpoint.ID)
		require.NoError(t, err)

		_, _, err = f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("private endpoint accepts no requests", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelPrivate)
		consumer := f.entity(t, identitymodels.StatusActive)

		_, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("suspended consumer cannot request", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)
		require.NoError(t, consumer.ApplyStatus(identitymodels.StatusSuspended, fixedNow))
		require.NoError(t, f.entities.Update(ctx, consumer))

		_, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("open endpoint auto-approves with request and grant in one step", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		issuer := credmock.NewMockIssuer(ctrl)
		issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("ext-client-42", nil)

		f := newFixture(t, issuer)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelOpen)
		consumer := f.entity(t, identitymodels.StatusActive)

		request, grant, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read", "write"})
		require.NoError(t, err)
		assert.Equal(t, models.RequestApproved, request.Status)
		require.NotNil(t, grant)
		assert.True(t, grant.Active)
		assert.Equal(t, "ext-client-42", grant.CredentialRef)
		assert.Equal(t, []string{"read", "write"}, grant.Scopes)

		// Both protocol steps appear in the audit trail.
		var types []audit.EventType
		for _, e := range f.events.All() {
			types = append(types, e.Type)
		}
		assert.Contains(t, types, audit.EventAccessRequested)
		assert.Contains(t, types, audit.EventAccessApproved)
	})

	t.Run("issuance failure aborts the auto-approval", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		issuer := credmock.NewMockIssuer(ctrl)
		issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).
			Return("", dErrors.New(dErrors.CodeInternal, "idp unreachable"))

		f := newFixture(t, issuer)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelOpen)
		consumer := f.entity(t, identitymodels.StatusActive)

		_, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		require.Error(t, err)
	})
}

func TestDecideAccess(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "provider@fjord.example")

	pendingRequest := func(t *testing.T, f *fixture) *models.AccessRequest {
		t.Helper()
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)
		request, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read", "write"})
		require.NoError(t, err)
		return request
	}

	t.Run("approval creates one active grant with subset scopes", func(t *testing.T) {
		f := newFixture(t, nil)
		request := pendingRequest(t, f)

		decided, grant, err := f.svc.DecideAccess(ctx, request.ID, DecisionApproved, []string{"read"}, "")
		require.NoError(t, err)
		assert.Equal(t, models.RequestApproved, decided.Status)
		assert.Equal(t, "provider@fjord.example", decided.DecidedBy)
		require.NotNil(t, grant)
		assert.Equal(t, []string{"read"}, grant.Scopes)
		assert.NotEmpty(t, grant.CredentialRef)
	})

	t.Run("empty approved subset yields a grant that authorizes nothing", func(t *testing.T) {
		f := newFixture(t, nil)
		request := pendingRequest(t, f)

		decided, grant, err := f.svc.DecideAccess(ctx, request.ID, DecisionApproved, []string{}, "")
		require.NoError(t, err)
		assert.Equal(t, models.RequestApproved, decided.Status)
		require.NotNil(t, grant)
		assert.True(t, grant.Active)
		assert.Empty(t, grant.Scopes)
	})

	t.Run("scopes outside the requested set are rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		request := pendingRequest(t, f)

		_, _, err := f.svc.DecideAccess(ctx, request.ID, DecisionApproved, []string{"admin"}, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("denial requires a reason", func(t *testing.T) {
		f := newFixture(t, nil)
		request := pendingRequest(t, f)

		_, _, err := f.svc.DecideAccess(ctx, request.ID, DecisionDenied, nil, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		decided, grant, err := f.svc.DecideAccess(ctx, request.ID, DecisionDenied, nil, "tier too low")
		require.NoError(t, err)
		assert.Nil(t, grant)
		assert.Equal(t, models.RequestDenied, decided.Status)
	})

	t.Run("settled request cannot be decided twice", func(t *testing.T) {
		f := newFixture(t, nil)
		request := pendingRequest(t, f)
		_, _, err := f.svc.DecideAccess(ctx, request.ID, DecisionApproved, nil, "")
		require.NoError(t, err)

		_, _, err = f.svc.DecideAccess(ctx, request.ID, DecisionDenied, nil, "changed my mind")
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("re-request after denial is allowed", func(t *testing.T) {
		f := newFixture(t, nil)
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)
		request, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		require.NoError(t, err)
		_, _, err = f.svc.DecideAccess(ctx, request.ID, DecisionDenied, nil, "not yet")
		require.NoError(t, err)

		again, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		require.NoError(t, err)
		assert.Equal(t, models.RequestPending, again.Status)
	})
}

func TestRevokeGrant(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "provider@fjord.example")

	approvedGrant := func(t *testing.T, f *fixture) *models.ConsumerGrant {
		t.Helper()
		_, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer := f.entity(t, identitymodels.StatusActive)
		request, _, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
		require.NoError(t, err)
		_, grant, err := f.svc.DecideAccess(ctx, request.ID, DecisionApproved, nil, "")
		require.NoError(t, err)
		return grant
	}

	t.Run("revocation deactivates and marks the request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		issuer := credmock.NewMockIssuer(ctrl)
		issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("ext-client-7", nil)
		issuer.EXPECT().Revoke(gomock.Any(), "ext-client-7").Return(nil)

		f := newFixture(t, issuer)
		grant := approvedGrant(t, f)

		revoked, err := f.svc.RevokeGrant(ctx, grant.ID, "contract ended")
		require.NoError(t, err)
		assert.False(t, revoked.Active)
		assert.Equal(t, "contract ended", revoked.RevokedReason)
		require.NotNil(t, revoked.RevokedAt)

		request, err := f.svc.requests.FindByID(ctx, grant.RequestID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestRevoked, request.Status)
	})

	t.Run("second revocation is a precondition failure", func(t *testing.T) {
		f := newFixture(t, nil)
		grant := approvedGrant(t, f)
		_, err := f.svc.RevokeGrant(ctx, grant.ID, "first")
		require.NoError(t, err)

		_, err = f.svc.RevokeGrant(ctx, grant.ID, "second")
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("missing reason", func(t *testing.T) {
		f := newFixture(t, nil)
		grant := approvedGrant(t, f)
		_, err := f.svc.RevokeGrant(ctx, grant.ID, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestListGrantsByConsumer(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "consumer@baltic.example")
	f := newFixture(t, nil)
	_, endpoint := f.publishedEndpoint(t, models.AccessModelOpen)
	consumer := f.entity(t, identitymodels.StatusActive)

	_, grant, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
	require.NoError(t, err)
	_, err = f.svc.RevokeGrant(ctx, grant.ID, "rotated")
	require.NoError(t, err)

	// History is retained: the revoked grant still lists.
	grants, err := f.svc.ListGrantsByConsumer(ctx, consumer.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.False(t, grants[0].Active)
}

func TestCascadeEntityDeactivation(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "admin@ops.example")
	f := newFixture(t, nil)

	provider, endpoint := f.publishedEndpoint(t, models.AccessModelOpen)
	consumer := f.entity(t, identitymodels.StatusActive)
	_, grant, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
	require.NoError(t, err)

	require.NoError(t, f.svc.CascadeEntityDeactivation(ctx, provider.ID, "provider dissolved"))

	// The provider's endpoint is gone and its grants are revoked.
	_, err = f.svc.PublishEndpoint(ctx, endpoint.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	revoked, err := f.svc.grants.FindByID(ctx, grant.ID)
	require.NoError(t, err)
	assert.False(t, revoked.Active)
	assert.Equal(t, "provider dissolved", revoked.RevokedReason)
}

func TestCascadeClosesPendingRequests(t *testing.T) {
	ctx := testutil.Ctx(fixedNow, "admin@ops.example")
	f := newFixture(t, nil)

	provider, endpoint := f.publishedEndpoint(t, models.AccessModelRestricted)
	consumer := f.entity(t, identitymodels.StatusActive)
	pending, grant, err := f.svc.RequestAccess(ctx, endpoint.ID, consumer.ID, []string{"read"})
	require.NoError(t, err)
	require.Nil(t, grant)

	t.Run("deactivating the provider settles requests on its endpoints", func(t *testing.T) {
		require.NoError(t, f.svc.CascadeEntityDeactivation(ctx, provider.ID, "provider dissolved"))

		closed, err := f.svc.requests.FindByID(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestRevoked, closed.Status)
	})

	t.Run("deactivating a consumer settles its own pending requests", func(t *testing.T) {
		_, endpoint2 := f.publishedEndpoint(t, models.AccessModelRestricted)
		consumer2 := f.entity(t, identitymodels.StatusActive)
		pending2, _, err := f.svc.RequestAccess(ctx, endpoint2.ID, consumer2.ID, []string{"read"})
		require.NoError(t, err)

		require.NoError(t, f.svc.CascadeEntityDeactivation(ctx, consumer2.ID, "membership lapsed"))

		closed, err := f.svc.requests.FindByID(ctx, pending2.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestRevoked, closed.Status)
	})
}
