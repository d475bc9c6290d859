// Package handler exposes endpoint publication and access authorization
// over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"registra/internal/access/models"
	"registra/internal/access/service"
	"registra/internal/transport/http/shared"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

type Handler struct {
	logger *slog.Logger
	access *service.Service
}

func New(access *service.Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, access: access}
}

// Register mounts the member-facing endpoint and grant routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/endpoints", h.handleCreateEndpoint)
	r.Post("/endpoints/{endpointID}/publish", h.handlePublish)
	r.Post("/endpoints/{endpointID}/unpublish", h.handleUnpublish)
	r.Get("/entities/{entityID}/endpoints", h.handleListEndpoints)
	r.Post("/endpoints/{endpointID}/requests", h.handleRequestAccess)
	r.Post("/requests/{requestID}/decision", h.handleDecide)
	r.Post("/grants/{grantID}/revoke", h.handleRevokeGrant)
	r.Get("/consumers/{entityID}/grants", h.handleListGrants)
}

type createEndpointRequest struct {
	EntityID    domain.EntityID `json:"entity_id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Type        string          `json:"type"`
	AccessModel string          `json:"access_model"`
}

type endpointResponse struct {
	ID                domain.EndpointID `json:"id"`
	EntityID          domain.EntityID   `json:"entity_id"`
	Name              string            `json:"name"`
	URL               string            `json:"url"`
	Type              string            `json:"type"`
	PublicationStatus string            `json:"publication_status"`
	AccessModel       string            `json:"access_model"`
	PublishedAt       *time.Time        `json:"published_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toEndpointResponse(e *models.Endpoint) endpointResponse {
	return endpointResponse{
		ID:                e.ID,
		EntityID:          e.EntityID,
		Name:              e.Name,
		URL:               e.URL,
		Type:              string(e.Type),
		PublicationStatus: string(e.PublicationStatus),
		AccessModel:       string(e.AccessModel),
		PublishedAt:       e.PublishedAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func (h *Handler) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	endpoint, err := h.access.CreateEndpoint(r.Context(), service.CreateEndpointInput{
		EntityID:    req.EntityID,
		Name:        req.Name,
		URL:         req.URL,
		Type:        models.EndpointType(req.Type),
		AccessModel: models.AccessModel(req.AccessModel),
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toEndpointResponse(endpoint))
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	h.endpointTransition(w, r, h.access.PublishEndpoint)
}

func (h *Handler) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	h.endpointTransition(w, r, h.access.UnpublishEndpoint)
}

func (h *Handler) endpointTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id domain.EndpointID) (*models.Endpoint, error)) {
	id, err := endpointID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	endpoint, err := fn(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toEndpointResponse(endpoint))
}

func (h *Handler) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	entityID, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	endpoints, err := h.access.ListEndpointsByEntity(r.Context(), entityID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]endpointResponse, 0, len(endpoints))
	for i := range endpoints {
		out = append(out, toEndpointResponse(&endpoints[i]))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type requestAccessRequest struct {
	ConsumerID domain.EntityID `json:"consumer_id"`
	Scopes     []string        `json:"scopes"`
}

type accessRequestResponse struct {
	ID              domain.RequestID  `json:"id"`
	EndpointID      domain.EndpointID `json:"endpoint_id"`
	ConsumerID      domain.EntityID   `json:"consumer_id"`
	RequestedScopes []string          `json:"requested_scopes"`
	ApprovedScopes  []string          `json:"approved_scopes,omitempty"`
	Status          string            `json:"status"`
	DecidedBy       string            `json:"decided_by,omitempty"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	DenialReason    string            `json:"denial_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type grantResponse struct {
	ID            domain.GrantID    `json:"id"`
	RequestID     domain.RequestID  `json:"request_id"`
	EndpointID    domain.EndpointID `json:"endpoint_id"`
	ConsumerID    domain.EntityID   `json:"consumer_id"`
	Scopes        []string          `json:"scopes"`
	CredentialRef string            `json:"credential_ref"`
	Active        bool              `json:"active"`
	RevokedAt     *time.Time        `json:"revoked_at,omitempty"`
	RevokedReason string            `json:"revoked_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type decisionResponse struct {
	Request accessRequestResponse `json:"request"`
	Grant   *grantResponse        `json:"grant,omitempty"`
}

func toRequestResponse(req *models.AccessRequest) accessRequestResponse {
	return accessRequestResponse{
		ID:              req.ID,
		EndpointID:      req.EndpointID,
		ConsumerID:      req.ConsumerID,
		RequestedScopes: req.RequestedScopes,
		ApprovedScopes:  req.ApprovedScopes,
		Status:          string(req.Status),
		DecidedBy:       req.DecidedBy,
		DecidedAt:       req.DecidedAt,
		DenialReason:    req.DenialReason,
		CreatedAt:       req.CreatedAt,
	}
}

func toGrantResponse(g *models.ConsumerGrant) *grantResponse {
	if g == nil {
		return nil
	}
	return &grantResponse{
		ID:            g.ID,
		RequestID:     g.RequestID,
		EndpointID:    g.EndpointID,
		ConsumerID:    g.ConsumerID,
		Scopes:        g.Scopes,
		CredentialRef: g.CredentialRef,
		Active:        g.Active,
		RevokedAt:     g.RevokedAt,
		RevokedReason: g.RevokedReason,
		CreatedAt:     g.CreatedAt,
	}
}

func (h *Handler) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	endpointID, err := endpointID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req requestAccessRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	accessReq, grant, err := h.access.RequestAccess(r.Context(), endpointID, req.ConsumerID, req.Scopes)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, decisionResponse{
		Request: toRequestResponse(accessReq),
		Grant:   toGrantResponse(grant),
	})
}

type decideRequest struct {
	Decision       string   `json:"decision"`
	ApprovedScopes []string `json:"approved_scopes,omitempty"`
	DenialReason   string   `json:"denial_reason,omitempty"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	requestID, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request id"))
		return
	}

	var req decideRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	accessReq, grant, err := h.access.DecideAccess(r.Context(), requestID, service.Decision(req.Decision), req.ApprovedScopes, req.DenialReason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, decisionResponse{
		Request: toRequestResponse(accessReq),
		Grant:   toGrantResponse(grant),
	})
}

type revokeGrantRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	grantID, err := domain.ParseGrantID(chi.URLParam(r, "grantID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid grant id"))
		return
	}

	var req revokeGrantRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	grant, err := h.access.RevokeGrant(r.Context(), grantID, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toGrantResponse(grant))
}

func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	consumerID, err := entityID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	grants, err := h.access.ListGrantsByConsumer(r.Context(), consumerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]*grantResponse, 0, len(grants))
	for i := range grants {
		out = append(out, toGrantResponse(&grants[i]))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func endpointID(r *http.Request) (domain.EndpointID, error) {
	id, err := domain.ParseEndpointID(chi.URLParam(r, "endpointID"))
	if err != nil {
		return domain.EndpointID{}, dErrors.New(dErrors.CodeValidation, "invalid endpoint id")
	}
	return id, nil
}

func entityID(r *http.Request) (domain.EntityID, error) {
	id, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		return domain.EntityID{}, dErrors.New(dErrors.CodeValidation, "invalid entity id")
	}
	return id, nil
}
