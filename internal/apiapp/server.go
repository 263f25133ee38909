package apiapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phillip-england/leadsdash/internal/backend"
	"github.com/phillip-england/leadsdash/internal/config"
	"github.com/phillip-england/leadsdash/internal/envutil"
	"github.com/phillip-england/leadsdash/internal/fixtures"
	"github.com/phillip-england/leadsdash/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Backend paths, relative to BackendBaseURL.
const (
	pcpLeadsPath        = "/admin/pcp/all-leads"
	pcpLeadPath         = "/admin/pcp/lead/"
	pcpSendEmailPath    = "/admin/pcp/lead/send-email/"
	pcpUpdateStatusPath = "/admin/pcp/lead/update-status"
	getLeadPath         = "/getlead"
)

const (
	msgUnableToFetch  = "Unable to fetch leads"
	msgInternalError  = "Internal Server Error"
	msgFetchLead      = "Failed to fetch lead"
	msgLeadIDRequired = "Lead ID is required"
	msgMissingStatus  = "Missing leadId or status"
	msgInvalidBody    = "Invalid request body"
	msgUpdateFailed   = "Failed to update status on external backend"
	msgLeadNotFound   = "Lead not found."
)

type Config struct {
	Addr             string
	BackendBaseURL   string
	FairPayLeadsPath string
	DPFLeadsPath     string
	BackendTimeout   time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

type server struct {
	backend     *backend.Client
	fairPayPath string
	dpfPath     string
	logger      logrus.FieldLogger
}

func DefaultConfigFromEnv(file config.File) Config {
	timeout := file.BackendTimeout()
	if timeout == 0 {
		timeout = backend.DefaultTimeout
	}
	return Config{
		Addr:             envutil.String("API_ADDR", ":8080"),
		BackendBaseURL:   strings.TrimSpace(file.Backend.BaseURL),
		FairPayLeadsPath: strings.TrimSpace(file.Backend.FairPayLeadsPath),
		DPFLeadsPath:     strings.TrimSpace(file.Backend.DPFLeadsPath),
		BackendTimeout:   timeout,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     15 * time.Second,
	}
}

// NewHandler returns the api router. Fair Pay and DPF are served from the
// embedded fixtures while their backend paths are empty.
func NewHandler(cfg Config, logger logrus.FieldLogger) http.Handler {
	s := &server{
		backend:     backend.New(cfg.BackendBaseURL, cfg.BackendTimeout, logger),
		fairPayPath: cfg.FairPayLeadsPath,
		dpfPath:     cfg.DPFLeadsPath,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.genericLeads)
		r.Get("/fair-pay", s.listRoute(s.fairPayPath, fixtures.FairPayLeads))
		r.Get("/dpf", s.listRoute(s.dpfPath, fixtures.DPFLeads))
		r.Get("/pcp", s.listRoute(pcpLeadsPath, ""))
		r.Post("/pcp/update-status", s.updatePCPStatus)
		r.Get("/pcp/{id}", s.pcpLead)
		r.Post("/pcp/{id}/send-email", s.sendPCPEmail)
		r.Get("/{id}", s.genericLead)
	})
	return middleware.Chain(
		r,
		middleware.NoStore,
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
			ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		}),
	)
}

func Run(ctx context.Context, cfg Config, logger *logrus.Logger) error {
	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.FairPayLeadsPath == "" {
		logger.Warn("FAIRPAY_LEADS_PATH not set: serving fixture Fair Pay leads")
	}
	if cfg.DPFLeadsPath == "" {
		logger.Warn("DPF_LEADS_PATH not set: serving fixture DPF leads")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger),
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("backend", cfg.BackendBaseURL).Infof("api listening on http://localhost%s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// listRoute forwards a lead list fetch. An empty path serves fixture instead.
// A 401 is passed through so the dashboard can end the session; every other
// failure collapses into the generic list error.
func (s *server) listRoute(path, fixture string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if path == "" {
			data, err := fixtures.Load(fixture)
			if err != nil {
				s.logger.WithError(err).Error("fixture load failed")
				writeError(w, http.StatusInternalServerError, msgUnableToFetch)
				return
			}
			writeRaw(w, http.StatusOK, data)
			return
		}

		resp, err := s.backend.Do(r.Context(), http.MethodGet, path, nil, bearerToken(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, msgUnableToFetch)
			return
		}
		if resp.Status == http.StatusUnauthorized {
			mirror(w, resp)
			return
		}
		if !resp.OK() || !json.Valid(resp.Body) {
			s.logger.WithFields(logrus.Fields{"path": path, "status": resp.Status}).Warn("lead list fetch failed")
			writeError(w, http.StatusInternalServerError, msgUnableToFetch)
			return
		}
		writeRaw(w, resp.Status, resp.Body)
	}
}

func (s *server) pcpLead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeMessage(w, http.StatusBadRequest, msgLeadIDRequired)
		return
	}
	resp, err := s.backend.Do(r.Context(), http.MethodGet, pcpLeadPath+url.PathEscape(id), nil, bearerToken(r))
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	if !resp.OK() {
		writeMessage(w, resp.Status, msgFetchLead)
		return
	}
	if !json.Valid(resp.Body) {
		writeMessage(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	writeRaw(w, resp.Status, resp.Body)
}

// sendPCPEmail forwards the request body and mirrors the backend reply.
func (s *server) sendPCPEmail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeMessage(w, http.StatusBadRequest, msgLeadIDRequired)
		return
	}
	var body map[string]any
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if body == nil {
		body = map[string]any{}
	}
	resp, err := s.backend.Do(r.Context(), http.MethodPost, pcpSendEmailPath+url.PathEscape(id), body, bearerToken(r))
	if err != nil || !json.Valid(resp.Body) {
		writeMessage(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	mirror(w, resp)
}

type updateStatusRequest struct {
	LeadID string `json:"leadId"`
	Status string `json:"status"`
}

func (s *server) updatePCPStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.LeadID = strings.TrimSpace(req.LeadID)
	req.Status = strings.TrimSpace(req.Status)
	if req.LeadID == "" || req.Status == "" {
		writeMessage(w, http.StatusBadRequest, msgMissingStatus)
		return
	}
	resp, err := s.backend.Do(r.Context(), http.MethodPost, pcpUpdateStatusPath, req, bearerToken(r))
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	if !resp.OK() {
		msg := backend.Message(resp.Body)
		if msg == "" {
			msg = msgUpdateFailed
		}
		writeMessage(w, resp.Status, msg)
		return
	}
	if !json.Valid(resp.Body) {
		writeMessage(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	writeRaw(w, resp.Status, resp.Body)
}

func (s *server) genericLeads(w http.ResponseWriter, r *http.Request) {
	s.forwardGetLead(w, r, getLeadPath, "Failed to fetch leads from backend.")
}

func (s *server) genericLead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing lead id."})
		return
	}
	s.forwardGetLead(w, r, getLeadPath+"/"+url.PathEscape(id), "Failed to fetch lead detail from backend.")
}

func (s *server) forwardGetLead(w http.ResponseWriter, r *http.Request, path, transportMsg string) {
	resp, err := s.backend.Do(r.Context(), http.MethodGet, path, nil, bearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": transportMsg})
		return
	}
	switch {
	case resp.Status == http.StatusNotFound && path != getLeadPath:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": msgLeadNotFound})
	case !resp.OK():
		writeJSON(w, resp.Status, map[string]any{"error": fmt.Sprintf("Backend error: %d", resp.Status)})
	case !json.Valid(resp.Body):
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": transportMsg})
	default:
		writeRaw(w, resp.Status, resp.Body)
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func mirror(w http.ResponseWriter, resp *backend.Response) {
	writeRaw(w, resp.Status, resp.Body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
