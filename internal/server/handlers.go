package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/analytics"
	"github.com/netsight/reportd/internal/auth"
	"github.com/netsight/reportd/internal/store"
)

// Wildcard values the dashboard sends for "no filter".
const (
	allSites   = "All Sites"
	allDevices = "All Devices"
)

var defaultDashboard = []map[string]any{
	{
		"id":     "default",
		"title":  "Network Trend",
		"metric": "clients",
		"type":   "area",
		"site":   allSites,
		"device": allDevices,
	},
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.FindUser(r.Context(), req.Username)
	if errors.Is(err, store.ErrUserNotFound) || (err == nil && !auth.VerifyPassword(user.PasswordHash, req.Password)) {
		respondError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user": map[string]any{
			"username":      user.Username,
			"role":          user.Role,
			"allowed_sites": user.AllowedSites,
		},
	})
}

// load kicks off a background sync and returns the site/device map plus the
// caller's dashboard layout.
func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	s.syncer.Trigger()

	var sites []string
	var err error
	if identity.IsAdmin() {
		sites, err = s.engine.Sites(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "loading sites failed")
			return
		}
	} else {
		sites = identity.AllowedSites
	}

	siteMap := map[string][]string{
		allSites: {allDevices},
	}
	for _, site := range sites {
		devices, err := s.engine.Devices(r.Context(), site)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "loading devices failed")
			return
		}
		siteMap[site] = append([]string{allDevices}, devices...)
	}

	user, err := s.users.FindUser(r.Context(), identity.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	dashboard := user.Dashboard
	if len(dashboard) == 0 {
		dashboard = defaultDashboard
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Connected. Syncing cloud in background...",
		"site_map":  siteMap,
		"dashboard": dashboard,
		"role":      identity.Role,
	})
}

type analyzeRequest struct {
	Site   string `json:"site"`
	Device string `json:"device"`
	Metric string `json:"metric"`
	Hours  int    `json:"hours"`
}

// analyze serves chart data: a client-count time series or a health/state
// distribution over the caller's reachable records.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	req := analyzeRequest{Site: allSites, Device: allDevices, Metric: "clients"}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query, ok := s.scopeQuery(w, r, identity, req)
	if !ok {
		return
	}

	records, err := s.engine.Filter(r.Context(), query)
	if err != nil {
		s.logger.Error("filter query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	switch req.Metric {
	case "clients":
		respondJSON(w, http.StatusOK, analytics.TimeSeries(records))
	case "health":
		respondJSON(w, http.StatusOK, analytics.Distribution(records, analytics.HealthOf))
	case "state":
		respondJSON(w, http.StatusOK, analytics.Distribution(records, analytics.StateOf))
	default:
		respondError(w, http.StatusBadRequest, "unknown metric")
	}
}

// scopeQuery translates the request into a record query bounded by the
// caller's allowed sites. Access violations are rejected before any query
// executes.
func (s *Server) scopeQuery(w http.ResponseWriter, r *http.Request, identity auth.Identity, req analyzeRequest) (store.RecordQuery, bool) {
	var query store.RecordQuery

	if req.Site == allSites {
		if !identity.IsAdmin() {
			query.Sites = identity.AllowedSites
			if len(query.Sites) == 0 {
				respondJSON(w, http.StatusOK, []any{})
				return query, false
			}
		}
	} else {
		if !identity.CanAccessSite(req.Site) {
			respondError(w, http.StatusForbidden, "access denied")
			return query, false
		}
		query.Sites = []string{req.Site}
	}

	if req.Device != "" && req.Device != allDevices {
		query.Device = req.Device
	}
	if req.Hours > 0 {
		query.Window = time.Duration(req.Hours) * time.Hour
	}

	return query, true
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var allowed []string
	if !identity.IsAdmin() {
		allowed = identity.AllowedSites
		if len(allowed) == 0 {
			respondJSON(w, http.StatusOK, analytics.Summary{Connectivity: "0%"})
			return
		}
	}

	summary, err := s.engine.Summary(r.Context(), allowed)
	if err != nil {
		s.logger.Error("summary query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.syncer.Status().Snapshot())
}

type dashboardRequest struct {
	Config []map[string]any `json:"config"`
}

func (s *Server) saveDashboard(w http.ResponseWriter, r *http.Request) {
	var req dashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.SaveDashboard(r.Context(), identityFrom(r).Username, req.Config); err != nil {
		respondError(w, http.StatusInternalServerError, "save failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "listing users failed")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	Role         string   `json:"role"`
	AllowedSites []string `json:"allowed_sites"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "hashing failed")
		return
	}

	err = s.users.CreateUser(r.Context(), store.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		AllowedSites: req.AllowedSites,
	})
	if errors.Is(err, store.ErrUserExists) {
		respondError(w, http.StatusBadRequest, "user already exists")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == identityFrom(r).Username {
		respondError(w, http.StatusBadRequest, "cannot delete own account")
		return
	}

	err := s.users.DeleteUser(r.Context(), username)
	if errors.Is(err, store.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// resetCache clears the processed-file ledger so the next sync re-ingests
// every remote file.
func (s *Server) resetCache(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ledger.ResetLedger(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"markers_removed": removed,
	})
}
