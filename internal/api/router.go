package api

import "net/http"

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /v1/uploads", h.RegisterUpload)
	mux.HandleFunc("GET /v1/uploads/{id}/status", h.UploadStatus)
	mux.HandleFunc("POST /v1/decisions", h.ApplyDecision)
	mux.HandleFunc("GET /v1/items/{id}/history", h.History)
	mux.HandleFunc("GET /v1/items/{id}/findings", h.Findings)
	mux.HandleFunc("GET /v1/items/{id}/export", h.Export)
	mux.HandleFunc("GET /v1/signing-key", h.SigningKey)
	return mux
}
