// Package handler exposes the party and legal-entity registry over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"registra/internal/identity/models"
	"registra/internal/identity/service"
	"registra/internal/transport/http/shared"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

// Handler handles registry endpoints. Status transitions are mounted on the
// admin router by the caller.
type Handler struct {
	logger   *slog.Logger
	identity *service.Service
}

func New(identity *service.Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, identity: identity}
}

// Register mounts the authenticated registry routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/parties", h.handleRegisterParty)
	r.Post("/entities", h.handleRegisterEntity)
	r.Get("/entities/{entityID}", h.handleGetEntity)
	r.Get("/entities/{entityID}/trust", h.handleTrustProfile)
	r.Get("/parties/{partyID}/entity", h.handleGetEntityForParty)
}

// RegisterAdmin mounts the operator-only status transitions.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/entities/{entityID}/approve", h.handleApprove)
	r.Post("/entities/{entityID}/reject", h.handleReject)
	r.Post("/entities/{entityID}/suspend", h.handleSuspend)
	r.Post("/entities/{entityID}/reinstate", h.handleReinstate)
	r.Delete("/entities/{entityID}", h.handleDeactivate)
}

type registerPartyRequest struct {
	Class string `json:"class"`
	Type  string `json:"type"`
}

type partyResponse struct {
	ID        domain.PartyID `json:"id"`
	Class     string         `json:"class"`
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *Handler) handleRegisterParty(w http.ResponseWriter, r *http.Request) {
	var req registerPartyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	party, err := h.identity.RegisterParty(r.Context(), models.PartyClass(req.Class), models.PartyType(req.Type))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, partyResponse{
		ID:        party.ID,
		Class:     string(party.Class),
		Type:      string(party.Type),
		CreatedAt: party.CreatedAt,
	})
}

type registerEntityRequest struct {
	PartyID   domain.PartyID `json:"party_id"`
	LegalName string         `json:"legal_name"`
	Address   string         `json:"address"`
	Domain    string         `json:"domain"`
}

type entityResponse struct {
	ID              domain.EntityID `json:"id"`
	PartyID         domain.PartyID  `json:"party_id"`
	LegalName       string          `json:"legal_name"`
	Address         string          `json:"address,omitempty"`
	Domain          string          `json:"domain,omitempty"`
	Status          string          `json:"status"`
	MembershipLevel string          `json:"membership_level"`
	AuthTier        int             `json:"auth_tier"`
	AuthMethod      string          `json:"auth_method"`
	DNSVerifiedAt   *time.Time      `json:"dns_verified_at,omitempty"`
	ReverifyDueAt   *time.Time      `json:"reverify_due_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func toEntityResponse(e *models.LegalEntity) entityResponse {
	return entityResponse{
		ID:              e.ID,
		PartyID:         e.PartyID,
		LegalName:       e.LegalName,
		Address:         e.Address,
		Domain:          e.Domain,
		Status:          string(e.Status),
		MembershipLevel: string(e.MembershipLevel),
		AuthTier:        int(e.AuthTier),
		AuthMethod:      string(e.AuthMethod),
		DNSVerifiedAt:   e.DNSVerifiedAt,
		ReverifyDueAt:   e.ReverifyDueAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func (h *Handler) handleRegisterEntity(w http.ResponseWriter, r *http.Request) {
	var req registerEntityRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	entity, err := h.identity.RegisterEntity(r.Context(), service.RegisterEntityInput{
		PartyID:   req.PartyID,
		LegalName: req.LegalName,
		Address:   req.Address,
		Domain:    req.Domain,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toEntityResponse(entity))
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	entity, err := h.identity.GetEntity(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toEntityResponse(entity))
}

func (h *Handler) handleGetEntityForParty(w http.ResponseWriter, r *http.Request) {
	partyID, err := domain.ParsePartyID(chi.URLParam(r, "partyID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid party id"))
		return
	}

	entity, err := h.identity.GetEntityForParty(r.Context(), partyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toEntityResponse(entity))
}

func (h *Handler) handleTrustProfile(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	profile, err := h.identity.TrustProfile(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, profile)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id domain.EntityID, _ string) (*models.LegalEntity, error) {
		return h.identity.ApproveEntity(r.Context(), id)
	}, false)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id domain.EntityID, reason string) (*models.LegalEntity, error) {
		return h.identity.RejectEntity(r.Context(), id, reason)
	}, true)
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id domain.EntityID, reason string) (*models.LegalEntity, error) {
		return h.identity.SuspendEntity(r.Context(), id, reason)
	}, true)
}

func (h *Handler) handleReinstate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id domain.EntityID, _ string) (*models.LegalEntity, error) {
		return h.identity.ReinstateEntity(r.Context(), id)
	}, false)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id domain.EntityID, reason string) (*models.LegalEntity, error) {
		return h.identity.DeactivateEntity(r.Context(), id, reason)
	}, true)
}

// transition factors the shared shape of the admin status endpoints: parse
// the ID, optionally decode a reason body, delegate, render the entity.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(domain.EntityID, string) (*models.LegalEntity, error), wantsBody bool) {
	id, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var reason string
	if wantsBody {
		var req reasonRequest
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.WriteError(w, err)
			return
		}
		reason = req.Reason
	}

	entity, err := fn(id, reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toEntityResponse(entity))
}

func entityID(r *http.Request) (domain.EntityID, error) {
	id, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		return domain.EntityID{}, dErrors.New(dErrors.CodeValidation, "invalid entity id")
	}
	return id, nil
}
