// Package shared holds the JSON envelope helpers every handler package uses,
// so error translation and response encoding stay uniform across the API.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "registra/pkg/domain-errors"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status. A nil v writes only headers.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a coded error into the JSON error envelope. Uncoded
// errors surface as 500s without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	env := errorEnvelope{Error: string(code)}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		env.Message = coded.Message
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), env)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid request body")
	}
	return nil
}
