package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fossclear/fossclear/internal/auth"
	"github.com/fossclear/fossclear/internal/clearing"
	"github.com/fossclear/fossclear/internal/ledger"
	"github.com/fossclear/fossclear/pkg/types"
)

type Handler struct {
	Auth    auth.Authenticator
	Service *ClearingService
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) RegisterUpload(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureService(w) {
		return
	}

	var req types.RegisterUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	resp, err := h.Service.RegisterUpload(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ApplyDecision(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureService(w) {
		return
	}

	var req types.ApplyDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	resp, err := h.Service.ApplyDecision(req)
	if err != nil {
		if errors.Is(err, clearing.ErrStoreWrite) {
			// Partial application: the response body says which nodes
			// succeeded and which did not.
			writeJSON(w, http.StatusBadGateway, resp)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureService(w) {
		return
	}
	resp, err := h.Service.History(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Findings(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureService(w) {
		return
	}
	resp, err := h.Service.Findings(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureService(w) {
		return
	}
	resp, err := h.Service.Export(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UploadStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureService(w) {
		return
	}
	resp, err := h.Service.UploadStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SigningKey(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil || h.Service.PublicKey == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "signing key not configured"})
		return
	}
	keyID := ""
	if h.Service.Signer != nil {
		keyID = h.Service.Signer.KeyID()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key_id":     keyID,
		"public_key": []byte(h.Service.PublicKey),
	})
}

func (h *Handler) ensureService(w http.ResponseWriter) bool {
	if h.Service == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "clearing service not configured"})
		return false
	}
	return true
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	_, err := h.Auth.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, clearing.ErrUnknownDecisionKind),
		errors.Is(err, clearing.ErrUnknownSkipOption):
		status = http.StatusBadRequest
	case errors.Is(err, clearing.ErrNodeNotFound),
		errors.Is(err, ledger.ErrItemNotFound),
		errors.Is(err, ledger.ErrFindingNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
