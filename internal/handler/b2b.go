package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

type inboundService interface {
	ReceiveAssertion(ctx context.Context, token string) (string, error)
}

type keySetProvider interface {
	PublicKeySet() (jwk.Set, error)
}

// B2BHandler serves the interbank protocol: peers post signed transfer assertions
// and fetch this bank's public keys.
type B2BHandler struct {
	inbound inboundService
	keys    keySetProvider
}

func NewB2BHandler(inbound inboundService, keys keySetProvider) *B2BHandler {
	return &B2BHandler{inbound: inbound, keys: keys}
}

type b2bRequest struct {
	JWT string `json:"jwt"`
}

type b2bResponse struct {
	ReceiverName string `json:"receiverName"`
}

func (h *B2BHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		RespondJSON(w, http.StatusBadRequest, protocolError{Error: "Invalid request body"})
		return
	}

	var req b2bRequest
	if err := json.Unmarshal(body, &req); err != nil || req.JWT == "" {
		RespondJSON(w, http.StatusBadRequest, protocolError{Error: "Missing jwt"})
		return
	}

	receiverName, err := h.inbound.ReceiveAssertion(r.Context(), req.JWT)
	if err != nil {
		log.Warn("inbound assertion refused", "error", err)
		RespondProtocolError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, b2bResponse{ReceiverName: receiverName})
}

func (h *B2BHandler) KeySet(w http.ResponseWriter, r *http.Request) {
	set, err := h.keys.PublicKeySet()
	if err != nil {
		logging.FromContext(r.Context()).Error("public key set unavailable", "error", err)
		RespondJSON(w, http.StatusInternalServerError, protocolError{Error: "Internal server error"})
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	RespondJSON(w, http.StatusOK, set)
}
