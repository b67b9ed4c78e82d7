package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"example.com/dot11gate/internal/common"
	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/dot11"
	"example.com/dot11gate/internal/inspect"
	"example.com/dot11gate/internal/manifest"
	"example.com/dot11gate/internal/report"
)

const (
	defaultMaxUpload = 512 << 20
	maxDecodeBody    = 1 << 16
)

// Server coordinates HTTP handlers and manages temporary artifacts produced by
// inspection requests.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	rulePacks   map[string]inspect.RulePack
	rulePackIDs []string
	stations    *dict.Store
	decoder     *dot11.Decoder
	strict      *dot11.Decoder
	strictDflt  bool
	concurrency int
	lang        report.Language
	maxUpload   int64
	signingKey  []byte
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
	Created     time.Time
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a fresh workspace directory under
// opts.StorageDir.
func NewServer(opts Options) (*Server, error) {
	packs, ids, err := buildRulePackMap(opts.RulePacks)
	if err != nil {
		return nil, err
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "dot11d-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if len(opts.SigningKeyPEM) > 0 {
		if _, err := manifest.ParsePrivateKey(opts.SigningKeyPEM); err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	lang := opts.Lang
	if lang == "" {
		lang = report.LangEnglish
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		rulePacks:   packs,
		rulePackIDs: ids,
		stations:    opts.Stations,
		decoder:     dot11.NewDecoder(nil),
		strict:      dot11.NewDecoder(nil, dot11.WithStrictElements()),
		strictDflt:  opts.StrictElements,
		concurrency: concurrency,
		lang:        lang,
		maxUpload:   maxUpload,
		signingKey:  opts.SigningKeyPEM,
	}
	common.Logf("server workspace %s (%d rule packs, %d workers)", workDir, len(ids), concurrency)
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          randomID(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
		Created:     time.Now().UTC(),
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	arts := make([]Artifact, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		arts = append(arts, art)
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(arts, func(i, j int) bool {
		if !arts[i].Created.Equal(arts[j].Created) {
			return arts[i].Created.Before(arts[j].Created)
		}
		return arts[i].ID < arts[j].ID
	})
	refs := make([]ArtifactRef, len(arts))
	for i, art := range arts {
		refs[i] = toRef(art)
	}
	return refs
}

// resolveInput maps an artifact id to its file. Only uploaded artifacts can
// be inspected.
func (s *Server) resolveInput(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty input")
	}
	art, ok := s.getArtifact(token)
	if !ok {
		return "", fmt.Errorf("unknown artifact %s", token)
	}
	if art.Kind != "upload" {
		return "", fmt.Errorf("artifact %s is not an upload", token)
	}
	return art.Path, nil
}

type inspectRequest struct {
	Input             string            `json:"input"`
	RulePackID        string            `json:"rulePackId"`
	RulePack          *inspect.RulePack `json:"rulePack"`
	IncludeTimestamps *bool             `json:"includeTimestamps"`
	StrictElements    *bool             `json:"strictElements"`
	Lang              string            `json:"lang"`
}

// readInspectRequest accepts either a JSON body naming an uploaded artifact or
// a multipart upload carrying the capture itself, with options in the query.
func (s *Server) readInspectRequest(r *http.Request) (inspectRequest, string, error) {
	var req inspectRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		ref, err := s.saveFirstUpload(r)
		if err != nil {
			return req, "", err
		}
		q := r.URL.Query()
		req.Input = ref.ID
		req.RulePackID = q.Get("rulePack")
		req.Lang = q.Get("lang")
		if v := q.Get("includeTimestamps"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, "", fmt.Errorf("includeTimestamps: %w", err)
			}
			req.IncludeTimestamps = &b
		}
		if v := q.Get("strict"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, "", fmt.Errorf("strict: %w", err)
			}
			req.StrictElements = &b
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "", fmt.Errorf("invalid json: %w", err)
	}
	if req.Input == "" {
		return req, "", errors.New("input required")
	}
	path, err := s.resolveInput(req.Input)
	if err != nil {
		return req, "", fmt.Errorf("input resolve: %w", err)
	}
	return req, path, nil
}

func (s *Server) loadRulePack(id string, override *inspect.RulePack) (inspect.RulePack, error) {
	if override != nil && len(override.Rules) > 0 {
		if err := override.Validate(); err != nil {
			return inspect.RulePack{}, err
		}
		return *override, nil
	}
	if strings.TrimSpace(id) == "" {
		id = DefaultRulePackID
	}
	rp, ok := s.rulePacks[id]
	if !ok {
		return inspect.RulePack{}, fmt.Errorf("unknown rule pack %s", id)
	}
	return rp, nil
}

func (s *Server) newEngine(req inspectRequest, path string) (*inspect.Engine, *inspect.Context, error) {
	rp, err := s.loadRulePack(req.RulePackID, req.RulePack)
	if err != nil {
		return nil, nil, fmt.Errorf("load rulepack: %w", err)
	}
	engine := inspect.NewEngine(rp)
	engine.RegisterBuiltins()
	engine.SetConcurrency(s.concurrency)
	includeTimestamps := true
	if req.IncludeTimestamps != nil {
		includeTimestamps = *req.IncludeTimestamps
	}
	engine.SetConfigValue("diag.include_timestamps", includeTimestamps)
	strict := s.strictDflt
	if req.StrictElements != nil {
		strict = *req.StrictElements
	}
	engine.SetConfigValue("decode.strict_elements", strict)
	ctx := &inspect.Context{InputFile: path, Stations: s.stations, Metrics: common.NewMetrics()}
	return engine, ctx, nil
}

func logRun(label string, ctx *inspect.Context, diags int) {
	snap := ctx.Metrics.Snapshot()
	common.Logf("%s %s: %d frames (%d malformed) in %s, %.0f frames/s, %d diagnostics",
		label, filepath.Base(ctx.InputFile), snap.Frames, snap.Malformed,
		snap.Duration.Round(time.Millisecond), snap.FramesPerSecond(), diags)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream := r.URL.Query().Get("stream") == "true"
	req, path, err := s.readInspectRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	engine, ctx, err := s.newEngine(req, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if stream {
		writer := NewNDJSONWriter(w)
		engine.SetDiagnosticCallback(writer.WriteDiagnostic)
		w.Header().Set("Content-Type", "application/x-ndjson")
		diags, err := engine.Eval(ctx)
		engine.SetDiagnosticCallback(nil)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		logRun("inspect", ctx, len(diags))
		rep := engine.MakeReport(ctx)
		arts, err := s.saveInspectionArtifacts(engine, rep)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		summary := struct {
			Type        string         `json:"type"`
			Report      inspect.Report `json:"report"`
			Artifacts   []ArtifactRef  `json:"artifacts"`
			Diagnostics int            `json:"diagnostics"`
		}{
			Type:        "summary",
			Report:      rep,
			Artifacts:   arts,
			Diagnostics: len(diags),
		}
		_ = writer.WriteObject(summary)
		return
	}

	diags, err := engine.Eval(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("eval: %v", err), http.StatusUnprocessableEntity)
		return
	}
	logRun("inspect", ctx, len(diags))
	rep := engine.MakeReport(ctx)
	arts, err := s.saveInspectionArtifacts(engine, rep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Report      inspect.Report `json:"report"`
		Diagnostics int            `json:"diagnostics"`
		Artifacts   []ArtifactRef  `json:"artifacts"`
	}{
		Report:      rep,
		Diagnostics: len(diags),
		Artifacts:   arts,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveInspectionArtifacts(engine *inspect.Engine, rep inspect.Report) ([]ArtifactRef, error) {
	diagPath, err := s.tempPath("diagnostics-*.ndjson")
	if err != nil {
		return nil, fmt.Errorf("diagnostics temp: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSONFile(diagPath); err != nil {
		return nil, fmt.Errorf("write diagnostics: %w", err)
	}
	repPath, err := s.tempPath("inspection-*.json")
	if err != nil {
		return nil, fmt.Errorf("report temp: %w", err)
	}
	if err := report.SaveInspectionJSON(rep, repPath); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	diagArt, err := s.addArtifact(diagPath, "diagnostics.ndjson", "application/x-ndjson", "diagnostics")
	if err != nil {
		return nil, fmt.Errorf("register diagnostics: %w", err)
	}
	repArt, err := s.addArtifact(repPath, "inspection_report.json", "application/json", "report")
	if err != nil {
		return nil, fmt.Errorf("register report: %w", err)
	}
	return []ArtifactRef{toRef(diagArt), toRef(repArt)}, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, path, err := s.readInspectRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang := s.lang
	if req.Lang != "" {
		if lang, err = report.ParseLanguage(req.Lang); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	engine, ctx, err := s.newEngine(req, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	diags, err := engine.Eval(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("eval: %v", err), http.StatusUnprocessableEntity)
		return
	}
	logRun("report", ctx, len(diags))
	rep := engine.MakeReport(ctx)
	pdfPath, err := s.tempPath("inspection-*.pdf")
	if err != nil {
		http.Error(w, fmt.Sprintf("report pdf temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveInspectionPDF(rep, pdfPath, report.PDFOptions{Lang: lang}); err != nil {
		http.Error(w, fmt.Sprintf("write report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfArt, err := s.addArtifact(pdfPath, "inspection_report.pdf", "application/pdf", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register report: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Pass        bool        `json:"pass"`
		Sha256      string      `json:"sha256"`
		Diagnostics int         `json:"diagnostics"`
		Artifact    ArtifactRef `json:"artifact"`
	}{
		Pass:        rep.Summary.Pass,
		Sha256:      rep.Sha256,
		Diagnostics: len(diags),
		Artifact:    toRef(pdfArt),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDecode decodes one frame. The body is either the raw frame
// (application/octet-stream) or JSON {"hex": "..."}.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDecodeBody+1))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}
	if len(body) > maxDecodeBody {
		http.Error(w, fmt.Sprintf("body exceeds %d bytes", maxDecodeBody), http.StatusRequestEntityTooLarge)
		return
	}
	var frame []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Hex string `json:"hex"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
			return
		}
		frame, err = decodeHex(req.Hex)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		frame = body
	}
	dec := s.decoder
	if v := r.URL.Query().Get("strict"); v == "true" || (v == "" && s.strictDflt) {
		dec = s.strict
	}
	f, err := dec.Decode(frame)
	if err != nil {
		resp := struct {
			Error     string `json:"error"`
			Truncated string `json:"truncated,omitempty"`
		}{Error: err.Error()}
		switch {
		case errors.Is(err, dot11.ErrTruncatedHeader):
			resp.Truncated = "header"
		case errors.Is(err, dot11.ErrTruncatedElement):
			resp.Truncated = "element"
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, inspect.Describe(f, s.stations))
}

func decodeHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-', '\n', '\t':
			return -1
		}
		return r
	}, strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if clean == "" {
		return nil, errors.New("hex required")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

type registryEntry struct {
	Key       dot11.DispatchKey `json:"key"`
	Type      string            `json:"type"`
	Subtype   uint8             `json:"subtype"`
	Name      string            `json:"name"`
	Protected bool              `json:"protected"`
	Kind      string            `json:"kind"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reg := s.decoder.Registry()
	keys := reg.Keys()
	entries := make([]registryEntry, 0, len(keys))
	for _, key := range keys {
		kind, _ := reg.LookupKey(key)
		t, sub, prot := key.Split()
		entries = append(entries, registryEntry{
			Key:       key,
			Type:      t.String(),
			Subtype:   sub,
			Name:      dot11.SubtypeName(t, sub),
			Protected: prot,
			Kind:      kind.String(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRulePacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type packInfo struct {
		ID      string   `json:"id"`
		Version string   `json:"version,omitempty"`
		Rules   []string `json:"rules"`
	}
	out := make([]packInfo, 0, len(s.rulePackIDs))
	for _, id := range s.rulePackIDs {
		rp := s.rulePacks[id]
		info := packInfo{ID: id, Version: rp.Version}
		for _, rule := range rp.Rules {
			if !rule.Disabled {
				info.Rules = append(info.Rules, rule.RuleId)
			}
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.listArtifacts())
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		s.handleArtifacts(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"registry":  s.decoder.Registry().Len(),
		"stations":  !s.stations.IsEmpty(),
		"rulePacks": s.rulePackIDs,
	})
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".pcap", ".cap":
		return "application/vnd.tcpdump.pcap"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}
