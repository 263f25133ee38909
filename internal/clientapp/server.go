package clientapp

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/phillip-england/leadsdash/internal/backend"
	"github.com/phillip-england/leadsdash/internal/config"
	"github.com/phillip-england/leadsdash/internal/detailview"
	"github.com/phillip-england/leadsdash/internal/envutil"
	"github.com/phillip-england/leadsdash/internal/leads"
	"github.com/phillip-england/leadsdash/internal/middleware"
	"github.com/phillip-england/leadsdash/internal/security"
	"github.com/phillip-england/leadsdash/internal/session"
	"github.com/phillip-england/leadsdash/internal/signature"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr           string
	APIBaseURL     string
	BackendBaseURL string
	AuthRequired   bool
	SessionSecret  string
	SecureCookies  bool
	SessionTTL     time.Duration
	Location       *time.Location
	Groups         leads.Groups
	BackendTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

//go:embed templates/layout.html templates/login.html templates/leads.html templates/lead_detail.html templates/stats.html assets/app.css
var templatesFS embed.FS

type server struct {
	api          *backend.Client
	auth         *backend.Client
	sessions     *session.Store
	normalizer   leads.Normalizer
	groups       leads.Groups
	authRequired bool
	images       *http.Client
	now          func() time.Time
	logger       logrus.FieldLogger

	loginTmpl  *template.Template
	leadsTmpl  *template.Template
	detailTmpl *template.Template
	statsTmpl  *template.Template
}

type navLink struct {
	Label  string
	URL    string
	Active bool
}

type hiddenField struct {
	Name  string
	Value string
}

type leadRow struct {
	leads.Lead
	Number    int
	DetailURL string
}

type statsRow struct {
	leads.CampaignStats
	Share string
}

type pageData struct {
	Title        string
	Error        string
	Message      string
	CSRFField    template.HTML
	User         session.User
	SignedIn     bool
	AuthRequired bool
	LoadErrors   []string

	Groups        []navLink
	SubCampaigns  []navLink
	Statuses      []navLink
	PageSizes     []navLink
	Hidden        []hiddenField
	Search        string
	Rows          []leadRow
	Page          leads.Page
	Counts        leads.Counts
	PrevURL       string
	NextURL       string
	ExportCSVURL  string
	ExportXLSXURL string

	View         detailview.View
	TabLinks     []navLink
	BackURL      string
	NotifyURL    string
	VerifyURL    string
	SignatureURL string

	Summary  leads.Summary
	Periods  []navLink
	Campaign []statsRow
}

func DefaultConfigFromEnv(file config.File) Config {
	timeout := file.BackendTimeout()
	if timeout == 0 {
		timeout = backend.DefaultTimeout
	}
	return Config{
		Addr:           envutil.String("CLIENT_ADDR", ":3000"),
		APIBaseURL:     envutil.String("API_BASE_URL", "http://localhost:8080"),
		BackendBaseURL: strings.TrimSpace(file.Backend.BaseURL),
		AuthRequired:   envutil.Bool("AUTH_REQUIRED", true),
		SessionSecret:  envutil.String("SESSION_SECRET", ""),
		SecureCookies:  envutil.Bool("COOKIE_SECURE", false),
		SessionTTL:     envutil.Duration("SESSION_TTL", session.DefaultTTL),
		Location:       file.Location(),
		Groups:         file.LeadGroups(),
		BackendTimeout: timeout,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
	}
}

// NewHandler builds the dashboard router. Without a SessionSecret an
// ephemeral key is generated, so sessions end when the process restarts.
func NewHandler(cfg Config, logger logrus.FieldLogger) (http.Handler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	key := security.DecodeKey(cfg.SessionSecret)
	if len(key) == 0 {
		generated, err := security.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = security.DecodeKey(generated)
		logger.Warn("SESSION_SECRET not set: using an ephemeral session key")
	}
	signer, err := security.NewSigner(key)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}
	groups := cfg.Groups
	if len(groups) == 0 {
		groups = leads.DefaultGroups()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &server{
		api:          backend.New(cfg.APIBaseURL, cfg.BackendTimeout, logger),
		auth:         backend.New(cfg.BackendBaseURL, cfg.BackendTimeout, logger),
		sessions:     session.NewStore(signer, cfg.SecureCookies, cfg.SessionTTL),
		normalizer:   leads.Normalizer{Location: loc},
		groups:       groups,
		authRequired: cfg.AuthRequired,
		images:       &http.Client{Timeout: cfg.BackendTimeout},
		now:          time.Now,
		logger:       logger,
		loginTmpl:    template.Must(template.ParseFS(templatesFS, "templates/login.html", "templates/layout.html")),
		leadsTmpl:    template.Must(template.ParseFS(templatesFS, "templates/leads.html", "templates/layout.html")),
		detailTmpl:   template.Must(template.ParseFS(templatesFS, "templates/lead_detail.html", "templates/layout.html")),
		statsTmpl:    template.Must(template.ParseFS(templatesFS, "templates/stats.html", "templates/layout.html")),
	}

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"script-src 'self' 'unsafe-inline'",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	if !cfg.SecureCookies {
		r.Use(plaintextHTTP)
	}
	r.Use(csrf.Protect(
		signer.Derive("csrf"),
		csrf.Secure(cfg.SecureCookies),
		csrf.Path("/"),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)),
	))
	r.Use(s.sessions.Middleware)

	r.Get("/", s.index)
	r.Get("/login", s.loginPage)
	r.Post("/login", s.login)
	r.Post("/logout", s.logout)
	r.Get("/assets/app.css", s.appCSSFile)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/", s.leadsPage)
		r.Get("/export.csv", s.exportCSV)
		r.Get("/export.xlsx", s.exportXLSX)
		r.Get("/stats", s.statsPage)
		r.Get("/leads/{source}/{id}", s.leadDetailPage)
		r.Post("/leads/pcp/{id}/notify-no-signature", s.notifyNoSignature)
		r.Post("/leads/pcp/{id}/verify-signature", s.verifySignature)
		r.Get("/leads/pcp/{id}/signature.png", s.signatureImage)
	})
	return middleware.Chain(r, middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp})), nil
}

func Run(ctx context.Context, cfg Config, logger *logrus.Logger) error {
	if cfg.AuthRequired && strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return errors.New("BACKEND_BASE_URL is required for admin login")
	}
	if !cfg.AuthRequired {
		logger.Warn("AUTH_REQUIRED=false: admin pages are open without login")
	}
	handler, err := NewHandler(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("api", cfg.APIBaseURL).Infof("client listening on http://localhost%s", cfg.Addr)
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

// plaintextHTTP marks requests as plain HTTP so the CSRF check does not
// demand an HTTPS Referer during local development.
func plaintextHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func (s *server) csrfFailure(w http.ResponseWriter, r *http.Request) {
	reason := "invalid form submission"
	if err := csrf.FailureReason(r); err != nil {
		reason = err.Error()
	}
	s.logger.WithField("path", r.URL.Path).Warnf("csrf check failed: %s", reason)
	if r.URL.Path == "/login" {
		redirectWithError(w, r, "/login", "Form expired, please try again")
		return
	}
	http.Error(w, "forbidden: "+reason, http.StatusForbidden)
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authRequired {
			if _, ok := session.FromContext(r.Context()); !ok {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); ok || !s.authRequired {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}
	data := s.basePage(r, "Admin Login")
	s.render(w, s.loginTmpl, "login", data)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "/login", "Invalid form submission")
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		redirectWithError(w, r, "/login", "Email and password are required")
		return
	}

	result, err := s.auth.Login(r.Context(), email, password)
	if err != nil {
		var refused *backend.LoginError
		if errors.As(err, &refused) {
			s.logger.WithField("email", email).Info("admin login refused")
			redirectWithError(w, r, "/login", refused.Message)
			return
		}
		s.logger.WithError(err).Warn("admin login failed")
		redirectWithError(w, r, "/login", "Authentication service unavailable")
		return
	}

	user := session.User{Role: result.User.Role, Name: result.User.Name}
	if result.User.PhoneNumber != nil {
		user.PhoneNumber = *result.User.PhoneNumber
	}
	if err := s.sessions.Save(w, session.Session{User: user, Token: result.Token}); err != nil {
		s.logger.WithError(err).Warn("saving admin session failed")
		redirectWithError(w, r, "/login", "Unable to start session")
		return
	}
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *server) leadsPage(w http.ResponseWriter, r *http.Request) {
	load, err := s.loadBoard(r.Context(), token(r))
	if err != nil {
		s.failPage(w, r, err, "unable to load leads")
		return
	}

	query := parseListQuery(r.URL.Query())
	filtered := query.Filter.Apply(load.Board.Rows(), s.groups)
	page := leads.Paginate(filtered, query.Page, query.PerPage)
	query.PerPage = page.Size

	data := s.basePage(r, "Leads")
	data.LoadErrors = load.Errors
	data.Search = query.Filter.Search
	data.Page = page
	data.Counts = leads.Count(filtered)
	data.Groups = s.groupLinks(query)
	data.SubCampaigns = s.subCampaignLinks(query)
	data.Statuses = statusLinks(query)
	data.PageSizes = pageSizeLinks(query)
	data.Hidden = query.hidden()
	data.PrevURL = query.withPage(page.PrevPage()).url("/admin")
	data.NextURL = query.withPage(page.NextPage()).url("/admin")
	data.ExportCSVURL = query.withPage(1).url("/admin/export.csv")
	data.ExportXLSXURL = query.withPage(1).url("/admin/export.xlsx")
	for i, lead := range page.Items {
		data.Rows = append(data.Rows, leadRow{
			Lead:      lead,
			Number:    page.StartIndex + i + 1,
			DetailURL: detailURL(lead.Source, lead.ID, ""),
		})
	}
	s.render(w, s.leadsTmpl, "leads", data)
}

func (s *server) exportCSV(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.exportRows(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(leads.ExportFilename(s.now(), "csv")))
	_, _ = w.Write([]byte(leads.CSV(rows)))
}

func (s *server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.exportRows(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := leads.WriteXLSX(&buf, rows); err != nil {
		s.logger.WithError(err).Error("xlsx export failed")
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(leads.ExportFilename(s.now(), "xlsx")))
	_, _ = w.Write(buf.Bytes())
}

// exportRows is the current filtered list without pagination.
func (s *server) exportRows(w http.ResponseWriter, r *http.Request) ([]leads.Lead, bool) {
	load, err := s.loadBoard(r.Context(), token(r))
	if err != nil {
		s.failPage(w, r, err, "unable to load leads")
		return nil, false
	}
	query := parseListQuery(r.URL.Query())
	return query.Filter.Apply(load.Board.Rows(), s.groups), true
}

func (s *server) statsPage(w http.ResponseWriter, r *http.Request) {
	load, err := s.loadBoard(r.Context(), token(r))
	if err != nil {
		s.failPage(w, r, err, "unable to load leads")
		return
	}
	period := leads.ParsePeriod(r.URL.Query().Get("period"))
	summary := leads.Summarize(load.Board.Rows(), period, s.now().In(s.normalizer.Location))

	data := s.basePage(r, "Lead Stats")
	data.LoadErrors = load.Errors
	data.Summary = summary
	for _, p := range leads.Periods {
		data.Periods = append(data.Periods, navLink{
			Label:  p.Label(),
			URL:    "/admin/stats?period=" + string(p),
			Active: p == period,
		})
	}
	for _, c := range summary.Campaigns {
		data.Campaign = append(data.Campaign, statsRow{CampaignStats: c, Share: summary.Share(c)})
	}
	s.render(w, s.statsTmpl, "stats", data)
}

func (s *server) leadDetailPage(w http.ResponseWriter, r *http.Request) {
	source, ok := leads.ParseSource(chi.URLParam(r, "source"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	load, err := s.loadLead(r.Context(), source, id, token(r))
	if err != nil {
		s.failPage(w, r, err, "unable to load lead")
		return
	}
	if !load.Found {
		http.NotFound(w, r)
		return
	}

	view := detailview.Compose(&load.Lead, load.Detail, load.DetailErr, r.URL.Query().Get("tab"))
	data := s.basePage(r, "Lead "+load.Lead.LeadID)
	data.View = view
	data.BackURL = "/admin?group=" + url.QueryEscape(string(source))
	for _, tab := range view.Tabs {
		data.TabLinks = append(data.TabLinks, navLink{
			Label:  tab.Label,
			URL:    detailURL(source, id, tab.Key),
			Active: tab.Key == view.ActiveTab,
		})
	}
	if view.IsPCP() {
		base := "/admin/leads/pcp/" + url.PathEscape(id)
		data.NotifyURL = base + "/notify-no-signature"
		data.VerifyURL = base + "/verify-signature"
		data.SignatureURL = base + "/signature.png"
	}
	s.render(w, s.detailTmpl, "lead detail", data)
}

func (s *server) notifyNoSignature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := detailURL(leads.SourcePCP, id, detailview.TabWorkflow)
	wf, err := s.workflow(r.Context(), id, token(r))
	if err != nil {
		s.workflowFailure(w, r, back, err)
		return
	}
	if !wf.CanNotify {
		redirectWith(w, r, back, "error", "Lead is not awaiting a signature")
		return
	}

	resp, err := s.api.Do(r.Context(), http.MethodPost, "/leads/pcp/"+url.PathEscape(id)+"/send-email", nil, token(r))
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.workflowFailure(w, r, back, err)
		return
	}
	s.logger.WithField("lead", id).Info("no-signature email sent")
	redirectWith(w, r, back, "message", "No-signature email sent")
}

func (s *server) verifySignature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := detailURL(leads.SourcePCP, id, detailview.TabWorkflow)
	wf, err := s.workflow(r.Context(), id, token(r))
	if err != nil {
		s.workflowFailure(w, r, back, err)
		return
	}
	if !wf.CanVerify {
		redirectWith(w, r, back, "error", "No signature on file to verify")
		return
	}

	payload := map[string]string{"leadId": id, "status": detailview.StatusSignatureVerified}
	resp, err := s.api.Do(r.Context(), http.MethodPost, "/leads/pcp/update-status", payload, token(r))
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.workflowFailure(w, r, back, err)
		return
	}
	s.logger.WithField("lead", id).Info("signature marked verified")
	redirectWith(w, r, back, "message", "Signature marked as verified")
}

func (s *server) workflowFailure(w http.ResponseWriter, r *http.Request, back string, err error) {
	if s.handleUnauthorized(w, r, err) {
		return
	}
	s.logger.WithError(err).WithField("path", r.URL.Path).Warn("workflow action failed")
	msg := "Unable to reach the lead service"
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		msg = statusErr.Error()
	}
	redirectWith(w, r, back, "error", msg)
}

func (s *server) signatureImage(w http.ResponseWriter, r *http.Request) {
	detail, err := s.fetchDetail(r.Context(), chi.URLParam(r, "id"), token(r))
	if err != nil {
		s.failPage(w, r, err, "unable to load lead")
		return
	}
	raw, err := signature.Load(r.Context(), s.images, detail.Signature.ImageRef)
	if errors.Is(err, signature.ErrNoImage) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.WithError(err).Warn("loading signature image failed")
		http.Error(w, "unable to load signature image", http.StatusBadGateway)
		return
	}
	preview, err := signature.Preview(raw)
	if err != nil {
		s.logger.WithError(err).Warn("signature preview failed")
		http.Error(w, "unreadable signature image", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	_, _ = w.Write(preview)
}

func (s *server) appCSSFile(w http.ResponseWriter, r *http.Request) {
	data, err := templatesFS.ReadFile("assets/app.css")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

func (s *server) basePage(r *http.Request, title string) pageData {
	sess, signedIn := session.FromContext(r.Context())
	query := r.URL.Query()
	return pageData{
		Title:        title,
		Error:        query.Get("error"),
		Message:      query.Get("message"),
		CSRFField:    csrf.TemplateField(r),
		User:         sess.User,
		SignedIn:     signedIn,
		AuthRequired: s.authRequired,
	}
}

// handleUnauthorized ends the session when the api rejected its token.
func (s *server) handleUnauthorized(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	s.sessions.Clear(w)
	redirectWithError(w, r, "/login", "Session expired, please sign in again")
	return true
}

func (s *server) failPage(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if s.handleUnauthorized(w, r, err) {
		return
	}
	s.logger.WithError(err).WithField("path", r.URL.Path).Error(msg)
	http.Error(w, msg, http.StatusBadGateway)
}

func (s *server) render(w http.ResponseWriter, tmpl *template.Template, name string, data pageData) {
	if err := renderHTMLTemplate(w, tmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		s.logger.WithError(err).Errorf("%s template render failed", name)
	}
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

func token(r *http.Request) string {
	sess, _ := session.FromContext(r.Context())
	return sess.Token
}

func detailURL(source leads.Source, id, tab string) string {
	u := "/admin/leads/" + string(source) + "/" + url.PathEscape(id)
	if tab != "" {
		u += "?tab=" + url.QueryEscape(tab)
	}
	return u
}

func attachment(filename string) string {
	return `attachment; filename="` + filename + `"`
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path, msg string) {
	redirectWith(w, r, path, "error", msg)
}

func redirectWith(w http.ResponseWriter, r *http.Request, target, key, msg string) {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	http.Redirect(w, r, target+sep+key+"="+url.QueryEscape(msg), http.StatusFound)
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
