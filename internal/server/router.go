package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/decode", s.handleDecode)
	mux.HandleFunc("/inspect", s.handleInspect)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/manifest", s.handleManifest)
	mux.HandleFunc("/registry", s.handleRegistry)
	mux.HandleFunc("/rulepacks", s.handleRulePacks)
	mux.HandleFunc("/artifacts", s.handleArtifacts)
	mux.HandleFunc("/artifacts/", s.handleArtifactDownload)
	mux.HandleFunc("/healthz", s.handleHealth)
	return http.MaxBytesHandler(mux, s.maxUpload)
}
