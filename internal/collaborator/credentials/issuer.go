// Package credentials is the M2M credential-issuance collaborator. The
// registry core stores only the opaque external client reference the
// issuer returns; secret material never enters this system.
package credentials

import (
	"context"

	"github.com/google/uuid"

	"registra/pkg/domain"
)

//go:generate mockgen -source=issuer.go -destination=mock/issuer_mock.go -package=mock

type IssueRequest struct {
	GrantID    domain.GrantID
	ConsumerID domain.EntityID
	EndpointID domain.EndpointID
	Scopes     []string
}

type Issuer interface {
	// Issue provisions a client credential for the grant and returns the
	// external client reference to store on it.
	Issue(ctx context.Context, req IssueRequest) (string, error)
	// Revoke invalidates the credential behind the reference. Idempotent on
	// the issuer side.
	Revoke(ctx context.Context, credentialRef string) error
}

// LocalIssuer mints opaque references without an external identity
// provider. Used in development and single-node deployments.
type LocalIssuer struct{}

func NewLocalIssuer() *LocalIssuer { return &LocalIssuer{} }

func (LocalIssuer) Issue(_ context.Context, _ IssueRequest) (string, error) {
	return "client-" + uuid.NewString(), nil
}

func (LocalIssuer) Revoke(_ context.Context, _ string) error { return nil }
