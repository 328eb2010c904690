package handlers

import "net/http"

// Root handles GET / with basic service identification.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	WriteJSONOK(w, map[string]string{
		"name":    h.info.Name,
		"version": h.info.Version,
		"status":  "operational",
	})
}

// Health handles GET /health and GET /api/v1/health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSONOK(w, map[string]string{"status": "healthy"})
}
