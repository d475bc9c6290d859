// Package domain holds typed identifiers shared across components.
//
// Each aggregate gets a distinct UUID wrapper so a ChallengeID can never be
// passed where an EndpointID is expected. Construct via the ParseX functions
// at trust boundaries; direct casting bypasses validation.
package domain

import (
	"database/sql/driver"

	"github.com/google/uuid"

	dErrors "registra/pkg/domain-errors"
)

type PartyID uuid.UUID
type EntityID uuid.UUID
type ChallengeID uuid.UUID
type EndpointID uuid.UUID
type RequestID uuid.UUID
type GrantID uuid.UUID

func parse(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" id cannot be the nil UUID")
	}
	return u, nil
}

func ParsePartyID(s string) (PartyID, error) {
	u, err := parse(s, "party")
	return PartyID(u), err
}

func ParseEntityID(s string) (EntityID, error) {
	u, err := parse(s, "entity")
	return EntityID(u), err
}

func ParseChallengeID(s string) (ChallengeID, error) {
	u, err := parse(s, "challenge")
	return ChallengeID(u), err
}

func ParseEndpointID(s string) (EndpointID, error) {
	u, err := parse(s, "endpoint")
	return EndpointID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parse(s, "request")
	return RequestID(u), err
}

func ParseGrantID(s string) (GrantID, error) {
	u, err := parse(s, "grant")
	return GrantID(u), err
}

func (id PartyID) String() string     { return uuid.UUID(id).String() }
func (id EntityID) String() string    { return uuid.UUID(id).String() }
func (id ChallengeID) String() string { return uuid.UUID(id).String() }
func (id EndpointID) String() string  { return uuid.UUID(id).String() }
func (id RequestID) String() string   { return uuid.UUID(id).String() }
func (id GrantID) String() string     { return uuid.UUID(id).String() }

func (id PartyID) Value() (driver.Value, error)     { return uuid.UUID(id).Value() }
func (id EntityID) Value() (driver.Value, error)    { return uuid.UUID(id).Value() }
func (id ChallengeID) Value() (driver.Value, error) { return uuid.UUID(id).Value() }
func (id EndpointID) Value() (driver.Value, error)  { return uuid.UUID(id).Value() }
func (id RequestID) Value() (driver.Value, error)   { return uuid.UUID(id).Value() }
func (id GrantID) Value() (driver.Value, error)     { return uuid.UUID(id).Value() }

func (id PartyID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EntityID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ChallengeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EndpointID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id RequestID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id GrantID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *PartyID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntityID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ChallengeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EndpointID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RequestID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *GrantID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id *PartyID) Scan(src any) error     { return (*uuid.UUID)(id).Scan(src) }
func (id *EntityID) Scan(src any) error    { return (*uuid.UUID)(id).Scan(src) }
func (id *ChallengeID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }
func (id *EndpointID) Scan(src any) error  { return (*uuid.UUID)(id).Scan(src) }
func (id *RequestID) Scan(src any) error   { return (*uuid.UUID)(id).Scan(src) }
func (id *GrantID) Scan(src any) error     { return (*uuid.UUID)(id).Scan(src) }

func (id PartyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ChallengeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EndpointID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id GrantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
