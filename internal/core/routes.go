package core

import "net/http"

// healthResponse is the liveness payload.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// mountHealth registers the liveness endpoint. It carries build metadata
// so deploys can be verified without shelling into the host.
func (s *Server) mountHealth() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusOK, healthResponse{
			Status:  "ok",
			Service: s.Config.Service,
			Version: s.Config.Build.Version,
			Commit:  s.Config.Build.Commit,
		})
	})
}
