package core

import "net/http"

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// HandleHealth reports liveness. The relay has no local dependencies to
// probe: Stripe and the downstream are checked per request, and their
// failures surface as 500s on the routes that use them.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	JSON(w, r, http.StatusOK, resp)
}
