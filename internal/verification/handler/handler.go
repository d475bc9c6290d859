// Package handler exposes domain verification and tier management over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	identitymodels "registra/internal/identity/models"
	"registra/internal/transport/http/shared"
	"registra/internal/verification/models"
	"registra/internal/verification/service"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

type Handler struct {
	logger       *slog.Logger
	verification *service.Service
}

func New(verification *service.Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, verification: verification}
}

// Register mounts the party-facing verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/entities/{entityID}/challenges", h.handleRequestChallenge)
	r.Post("/challenges/{challengeID}/proof", h.handleSubmitProof)
}

// RegisterAdmin mounts the operator-only tier overrides.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/entities/{entityID}/strong-assurance", h.handleStrongAssurance)
	r.Post("/entities/{entityID}/email-tier", h.handleEmailTier)
}

type requestChallengeRequest struct {
	Domain string `json:"domain"`
}

type challengeResponse struct {
	ID         domain.ChallengeID `json:"id"`
	EntityID   domain.EntityID    `json:"entity_id"`
	Domain     string             `json:"domain"`
	RecordName string             `json:"record_name"`
	Token      string             `json:"token,omitempty"`
	Status     string             `json:"status"`
	Attempts   int                `json:"attempts"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

func toChallengeResponse(c *models.DomainVerificationChallenge, includeToken bool) challengeResponse {
	resp := challengeResponse{
		ID:         c.ID,
		EntityID:   c.EntityID,
		Domain:     c.Domain,
		RecordName: c.RecordName,
		Status:     string(c.Status),
		Attempts:   c.Attempts,
		ExpiresAt:  c.ExpiresAt,
	}
	if includeToken {
		resp.Token = c.Token
	}
	return resp
}

func (h *Handler) handleRequestChallenge(w http.ResponseWriter, r *http.Request) {
	entityID, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req requestChallengeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	challenge, err := h.verification.RequestDomainChallenge(r.Context(), entityID, req.Domain)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// The token is returned once, at creation, so the caller can publish
	// the DNS record. Later reads never include it.
	shared.WriteJSON(w, http.StatusCreated, toChallengeResponse(challenge, true))
}

type submitProofRequest struct {
	ObservedRecords []string `json:"observed_records"`
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	challengeID, err := domain.ParseChallengeID(chi.URLParam(r, "challengeID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid challenge id"))
		return
	}

	var req submitProofRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	challenge, err := h.verification.SubmitDomainProof(r.Context(), challengeID, req.ObservedRecords)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toChallengeResponse(challenge, false))
}

type strongAssuranceRequest struct {
	AssuranceIdentifier string `json:"assurance_identifier"`
	AssuranceLevel      string `json:"assurance_level"`
}

type tierResponse struct {
	EntityID   domain.EntityID `json:"entity_id"`
	AuthTier   int             `json:"auth_tier"`
	AuthMethod string          `json:"auth_method"`
	Status     string          `json:"status"`
}

func toTierResponse(e *identitymodels.LegalEntity) tierResponse {
	return tierResponse{
		EntityID:   e.ID,
		AuthTier:   int(e.AuthTier),
		AuthMethod: string(e.AuthMethod),
		Status:     string(e.Status),
	}
}

func (h *Handler) handleStrongAssurance(w http.ResponseWriter, r *http.Request) {
	entityID, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req strongAssuranceRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	entity, err := h.verification.AcceptStrongAssurance(r.Context(), entityID, req.AssuranceIdentifier, req.AssuranceLevel)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toTierResponse(entity))
}

func (h *Handler) handleEmailTier(w http.ResponseWriter, r *http.Request) {
	entityID, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	entity, err := h.verification.DowngradeToEmailTier(r.Context(), entityID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toTierResponse(entity))
}

func entityID(r *http.Request) (domain.EntityID, error) {
	id, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		return domain.EntityID{}, dErrors.New(dErrors.CodeValidation, "invalid entity id")
	}
	return id, nil
}
