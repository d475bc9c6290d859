package entity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"registra/internal/identity/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) newEntity(partyID domain.PartyID) *models.LegalEntity {
	e, err := models.NewLegalEntity(
		domain.EntityID(uuid.New()), partyID,
		"Acme Logistics GmbH", "Hauptstr. 1, Berlin", "acme.example", s.now)
	require.NoError(s.T(), err)
	return e
}

func (s *InMemorySuite) TestCreateEnforcesOneLivePerParty() {
	partyID := domain.PartyID(uuid.New())
	first := s.newEntity(partyID)
	s.Require().NoError(s.store.Create(context.Background(), first))

	second := s.newEntity(partyID)
	err := s.store.Create(context.Background(), second)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemorySuite) TestCreateAllowsNewEntityAfterTombstone() {
	partyID := domain.PartyID(uuid.New())
	first := s.newEntity(partyID)
	s.Require().NoError(s.store.Create(context.Background(), first))

	first.ApplyTombstone(s.now)
	s.Require().NoError(s.store.Update(context.Background(), first))

	second := s.newEntity(partyID)
	s.Require().NoError(s.store.Create(context.Background(), second))
}

func (s *InMemorySuite) TestFindByIDExcludesTombstoned() {
	e := s.newEntity(domain.PartyID(uuid.New()))
	s.Require().NoError(s.store.Create(context.Background(), e))

	found, err := s.store.FindByID(context.Background(), e.ID)
	s.Require().NoError(err)
	s.Equal(e.LegalName, found.LegalName)

	e.ApplyTombstone(s.now)
	s.Require().NoError(s.store.Update(context.Background(), e))

	_, err = s.store.FindByID(context.Background(), e.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestFindLiveByPartyID() {
	partyID := domain.PartyID(uuid.New())
	_, err := s.store.FindLiveByPartyID(context.Background(), partyID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	e := s.newEntity(partyID)
	s.Require().NoError(s.store.Create(context.Background(), e))

	found, err := s.store.FindLiveByPartyID(context.Background(), partyID)
	s.Require().NoError(err)
	s.Equal(e.ID, found.ID)
}

func (s *InMemorySuite) TestUpdateUnknownEntity() {
	e := s.newEntity(domain.PartyID(uuid.New()))
	err := s.store.Update(context.Background(), e)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestListDueForReverification() {
	due := s.newEntity(domain.PartyID(uuid.New()))
	due.ApplyDomainVerification(s.now.Add(-91*24*time.Hour), 90*24*time.Hour)
	s.Require().NoError(s.store.Create(context.Background(), due))

	fresh := s.newEntity(domain.PartyID(uuid.New()))
	fresh.ApplyDomainVerification(s.now, 90*24*time.Hour)
	s.Require().NoError(s.store.Create(context.Background(), fresh))

	unverified := s.newEntity(domain.PartyID(uuid.New()))
	s.Require().NoError(s.store.Create(context.Background(), unverified))

	// A stale deadline on a strongly assured entity must not surface it.
	assured := s.newEntity(domain.PartyID(uuid.New()))
	assured.ApplyStrongAssurance(s.now)
	stale := s.now.Add(-24 * time.Hour)
	assured.ReverifyDueAt = &stale
	s.Require().NoError(s.store.Create(context.Background(), assured))

	got, err := s.store.ListDueForReverification(context.Background(), s.now)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(due.ID, got[0].ID)
}
