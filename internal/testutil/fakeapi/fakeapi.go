// Package fakeapi serves an in-memory stand-in for a running LocalStack
// backend (the /_localstack endpoints) and for the remote management API
// (under /v1), for tests.
package fakeapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Instance is the management API's view of an ephemeral instance.
type Instance struct {
	ID          string            `json:"id"`
	Name        string            `json:"instance_name"`
	Status      string            `json:"status"`
	EndpointURL string            `json:"endpoint_url,omitempty"`
	Lifetime    int               `json:"lifetime"`
	EnvVars     map[string]string `json:"env_vars,omitempty"`

	polls int
	logs  []string
}

// Server is a fake backend plus management API
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	token     string
	down      bool
	resources map[string]bool
	pods      map[string]map[string]bool
	resets    int
	instances map[string]*Instance
	nextID    int

	readyAfter int
	neverReady bool
	failStatus string
	requests   []string

	// instance GETs
	getFailures int
	getFailCode int
	getDelay    time.Duration
}

// New starts a fake that accepts token as the only valid credential.
func New(token string) *Server {
	s := &Server{
		token:     token,
		resources: map[string]bool{},
		pods:      map[string]map[string]bool{},
		instances: map[string]*Instance{},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/_localstack", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/health", s.handleHealth)
		r.Post("/state/reset", s.handleReset)
		r.Post("/pods/{name}", s.handleSavePod)
		r.Put("/pods/{name}", s.handleLoadPod)
	})

	r.Route("/v1/compute/instances", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/", s.handleListInstances)
		r.Post("/", s.handleCreateInstance)
		r.Get("/{name}", s.handleGetInstance)
		r.Get("/{name}/logs", s.handleInstanceLogs)
		r.Delete("/{name}", s.handleDeleteInstance)
	})

	return r
}

// APIURL is the management API base URL.
func (s *Server) APIURL() string {
	return s.URL + "/v1"
}

// SetDown makes the info endpoint answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// AddResource creates a named resource (think: a bucket) in backend state.
func (s *Server) AddResource(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[name] = true
}

// Resources lists backend state.
func (s *Server) Resources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.resources)
}

// Resets counts reset calls.
func (s *Server) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// SetReadyAfter makes new instances report running after n status reads.
func (s *Server) SetReadyAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyAfter = n
}

// SetNeverReady keeps new instances in the starting state forever.
func (s *Server) SetNeverReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neverReady = true
}

// SetFailStatus makes status reads of new instances report status.
func (s *Server) SetFailStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// FailGets makes the next n instance GETs answer with status.
func (s *Server) FailGets(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getFailures = n
	s.getFailCode = status
}

// SetGetDelay makes instance GETs stall for d, or until the client gives up.
func (s *Server) SetGetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getDelay = d
}

// SetLogs replaces the log lines of an instance.
func (s *Server) SetLogs(name string, lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instances[name]; ok {
		inst.logs = lines
	}
}

// HasInstance reports whether the management API holds name.
func (s *Server) HasInstance(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instances[name]
	return ok
}

// Requests returns "METHOD /path" for every request served.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ls-api-key") != s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) stateSecretValid(r *http.Request) bool {
	return r.Header.Get("x-localstack-state-secret") == base64.StdEncoding.EncodeToString([]byte(s.token))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "4.0.0", "edition": "pro", "is_license_activated": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": map[string]string{"s3": "running", "sqs": "available"},
		"edition":  "pro",
		"version":  "4.0.0",
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.resources = map[string]bool{}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleSavePod(w http.ResponseWriter, r *http.Request) {
	if !s.stateSecretValid(r) {
		http.Error(w, "invalid state secret", http.StatusUnauthorized)
		return
	}
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]bool, len(s.resources))
	for k := range s.resources {
		snapshot[k] = true
	}
	s.pods[name] = snapshot
	fmt.Fprintf(w, `{"name":%q,"version":1}`, name)
}

func (s *Server) handleLoadPod(w http.ResponseWriter, r *http.Request) {
	if !s.stateSecretValid(r) {
		http.Error(w, "invalid state secret", http.StatusUnauthorized)
		return
	}
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()
	pod, ok := s.pods[name]
	if !ok {
		http.Error(w, fmt.Sprintf("cloud pod %s not found", name), http.StatusNotFound)
		return
	}
	s.resources = make(map[string]bool, len(pod))
	for k := range pod {
		s.resources[k] = true
	}
	fmt.Fprintf(w, `{"name":%q,"loaded":true}`, name)
}

type createRequest struct {
	Name     string            `json:"instance_name"`
	Lifetime int               `json:"lifetime"`
	EnvVars  map[string]string `json:"env_vars"`
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Lifetime <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid instance request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[req.Name]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "instance already exists"})
		return
	}

	s.nextID++
	inst := &Instance{
		ID:       fmt.Sprintf("inst-%d", s.nextID),
		Name:     req.Name,
		Status:   "starting",
		Lifetime: req.Lifetime,
		EnvVars:  req.EnvVars,
	}
	s.advance(inst)
	s.instances[req.Name] = inst
	writeJSON(w, http.StatusOK, inst)
}

// advance moves an instance towards running according to the configured behavior.
func (s *Server) advance(inst *Instance) {
	switch {
	case s.failStatus != "":
		inst.Status = s.failStatus
	case s.neverReady:
		inst.Status = "starting"
	case inst.polls >= s.readyAfter:
		inst.Status = "running"
		inst.EndpointURL = fmt.Sprintf("https://%s.sandbox.localstack.cloud", strings.ToLower(inst.Name))
	}
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Instance, 0, len(s.instances))
	for _, name := range sortedKeys(s.instances) {
		list = append(list, s.instances[name])
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.getDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getFailures > 0 {
		s.getFailures--
		writeJSON(w, s.getFailCode, map[string]string{"error": http.StatusText(s.getFailCode)})
		return
	}
	inst, ok := s.instances[chi.URLParam(r, "name")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "instance not found"})
		return
	}
	inst.polls++
	s.advance(inst)
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleInstanceLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[chi.URLParam(r, "name")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "instance not found"})
		return
	}
	lines := make([]map[string]string, 0, len(inst.logs))
	for _, l := range inst.logs {
		lines = append(lines, map[string]string{"content": l})
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := chi.URLParam(r, "name")
	if _, ok := s.instances[name]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "instance not found"})
		return
	}
	delete(s.instances, name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
