package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/dot11gate/internal/common"
	"example.com/dot11gate/internal/manifest"
)

type manifestRequest struct {
	Artifacts []string `json:"artifacts"`
}

// handleManifest hashes the requested artifacts into a manifest artifact.
// Items are named "<id>/<name>" to match their download path.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req manifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Artifacts) == 0 {
		http.Error(w, "no artifacts requested", http.StatusBadRequest)
		return
	}
	arts := make([]Artifact, 0, len(req.Artifacts))
	paths := make([]string, 0, len(req.Artifacts))
	for _, id := range req.Artifacts {
		art, ok := s.getArtifact(strings.TrimSpace(id))
		if !ok {
			http.Error(w, fmt.Sprintf("unknown artifact %s", id), http.StatusNotFound)
			return
		}
		arts = append(arts, art)
		paths = append(paths, art.Path)
	}
	m, err := manifest.Build(paths)
	if err != nil {
		http.Error(w, fmt.Sprintf("build manifest: %v", err), http.StatusInternalServerError)
		return
	}
	for i, art := range arts {
		m.Items[i].Path = art.ID + "/" + art.Name
		m.Items[i].Type = manifest.Classify(art.Name)
	}

	dir, err := os.MkdirTemp(s.workDir, "manifest-")
	if err != nil {
		http.Error(w, fmt.Sprintf("manifest temp: %v", err), http.StatusInternalServerError)
		return
	}
	out := filepath.Join(dir, "manifest.json")
	if len(s.signingKey) > 0 {
		m, err = manifest.SignAndSave(m, out, s.signingKey)
	} else {
		err = manifest.Save(m, out)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("write manifest: %v", err), http.StatusInternalServerError)
		return
	}
	refs := make([]ArtifactRef, 0, 2)
	manArt, err := s.addArtifact(out, "manifest.json", "application/json", "manifest")
	if err != nil {
		http.Error(w, fmt.Sprintf("register manifest: %v", err), http.StatusInternalServerError)
		return
	}
	refs = append(refs, toRef(manArt))
	if m.Signature != nil {
		sigArt, err := s.addArtifact(out+manifest.SignatureExt, "manifest.json.jws", "application/jose", "signature")
		if err != nil {
			http.Error(w, fmt.Sprintf("register signature: %v", err), http.StatusInternalServerError)
			return
		}
		refs = append(refs, toRef(sigArt))
	}
	common.Logf("manifest %s: %d items signed=%v", manArt.ID, len(m.Items), m.Signature != nil)
	writeJSON(w, http.StatusOK, struct {
		Manifest  manifest.Manifest `json:"manifest"`
		Artifacts []ArtifactRef     `json:"artifacts"`
	}{m, refs})
}
