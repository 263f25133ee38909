package clientapp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phillip-england/leadsdash/internal/fixtures"
	"github.com/phillip-england/leadsdash/internal/session"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/xuri/excelize/v2"
)

const pcpID = "cmlqvcfiu0002wq8d30pbk073"

type seenRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

type reply struct {
	status int
	body   string
}

// fakeAPI serves the fixture lead lists the way the api process does, and
// the backend login endpoint.
type fakeAPI struct {
	mu        sync.Mutex
	seen      []seenRequest
	overrides map[string]reply
	srv       *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{overrides: map[string]reply{}}
	api.srv = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) override(method, path string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overrides[method+" "+path] = reply{status: status, body: body}
}

func (a *fakeAPI) requests(method, path string) []seenRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []seenRequest
	for _, req := range a.seen {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.seen = append(a.seen, seenRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: string(body)})
	over, ok := a.overrides[r.Method+" "+r.URL.Path]
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(over.status)
		_, _ = io.WriteString(w, over.body)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		var creds struct{ Email, Password string }
		_ = json.Unmarshal(body, &creds)
		if creds.Email != "admin@example.com" || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"adminUser":{"role":"admin","name":"Ops Admin","phoneNumber":null},"token":"tok-123"}}`)
	case r.URL.Path == "/leads/fair-pay":
		_, _ = w.Write(fixtures.MustLoad(fixtures.FairPayLeads))
	case r.URL.Path == "/leads/pcp":
		_, _ = w.Write(fixtures.MustLoad(fixtures.PCPLeads))
	case r.URL.Path == "/leads/dpf":
		_, _ = w.Write(fixtures.MustLoad(fixtures.DPFLeads))
	case r.URL.Path == "/leads/pcp/"+pcpID:
		_, _ = w.Write(fixtures.MustLoad(fixtures.PCPLeadDetail))
	case r.Method == http.MethodPost && (r.URL.Path == "/leads/pcp/update-status" || r.URL.Path == "/leads/pcp/"+pcpID+"/send-email"):
		_, _ = io.WriteString(w, `{"success":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"message":"not found"}`)
	}
}

func newTestApp(t *testing.T, api *fakeAPI, authRequired bool) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	handler, err := NewHandler(Config{
		APIBaseURL:     api.srv.URL,
		BackendBaseURL: api.srv.URL,
		AuthRequired:   authRequired,
		SessionSecret:  "client-test-session-secret",
		Location:       time.UTC,
		BackendTimeout: 2 * time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, target string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func postForm(t *testing.T, c *http.Client, target string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(target, form)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

var csrfFieldPattern = regexp.MustCompile(`name="gorilla\.csrf\.Token" value="([^"]+)"`)

func csrfToken(t *testing.T, body string) string {
	t.Helper()
	match := csrfFieldPattern.FindStringSubmatch(body)
	if match == nil {
		t.Fatalf("no csrf field in page:\n%s", body)
	}
	return match[1]
}

func signIn(t *testing.T, c *http.Client, base, email, password string) *http.Response {
	t.Helper()
	_, page := get(t, c, base+"/login")
	return postForm(t, c, base+"/login", url.Values{
		"email":              {email},
		"password":           {password},
		"gorilla.csrf.Token": {csrfToken(t, page)},
	})
}

func TestLoginPageRendersForm(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), true)
	resp, body := get(t, newBrowser(t), app.URL+"/login")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `name="email"`) || !strings.Contains(body, `name="password"`) {
		t.Fatalf("login form missing fields")
	}
	csrfToken(t, body)
}

func TestLoginWithWrongCredentialsRedirectsWithError(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api, true)
	browser := newBrowser(t)

	resp := signIn(t, browser, app.URL, "admin@example.com", "wrong")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/login?error=Invalid+credentials" {
		t.Fatalf("unexpected redirect %q", got)
	}
	for _, c := range resp.Cookies() {
		if c.Name == session.TokenCookie {
			t.Fatalf("no session cookie expected on failed login")
		}
	}
	if calls := api.requests(http.MethodPost, "/auth/login"); len(calls) != 1 || !strings.Contains(calls[0].Body, `"email":"admin@example.com"`) {
		t.Fatalf("unexpected login calls %+v", calls)
	}

	_, page := get(t, browser, app.URL+"/login?error=Invalid+credentials")
	if !strings.Contains(page, "Invalid credentials") {
		t.Fatalf("expected error message on login page")
	}
}

func TestLoginOpensDashboardWithBearerToken(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api, true)
	browser := newBrowser(t)

	resp := signIn(t, browser, app.URL, "admin@example.com", "secret")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/admin" {
		t.Fatalf("expected redirect to /admin, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, body := get(t, browser, app.URL+"/admin")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"John Doe", "Steven Tester", "DPF Tester", "Ops Admin"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %q on dashboard", name)
		}
	}
	calls := api.requests(http.MethodGet, "/leads/pcp")
	if len(calls) != 1 || calls[0].Auth != "Bearer tok-123" {
		t.Fatalf("expected bearer token forwarded, got %+v", calls)
	}
}

func TestAdminRequiresSession(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), true)
	resp, _ := get(t, newBrowser(t), app.URL+"/admin")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestDashboardFilters(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	browser := newBrowser(t)

	_, body := get(t, browser, app.URL+"/admin?group=pcp")
	if !strings.Contains(body, "Steven Tester") || strings.Contains(body, "John Doe") {
		t.Fatalf("pcp group should only list pcp leads")
	}

	_, body = get(t, browser, app.URL+"/admin?q=jane")
	if !strings.Contains(body, "Jane Smith") || strings.Contains(body, "John Doe") {
		t.Fatalf("search should narrow to Jane")
	}

	_, body = get(t, browser, app.URL+"/admin?status=sold")
	if !strings.Contains(body, "<strong>3</strong> Sold") || !strings.Contains(body, "<strong>3</strong> Total") {
		t.Fatalf("expected sold counts in:\n%s", body)
	}
}

func TestDashboardPaginates(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	_, body := get(t, newBrowser(t), app.URL+"/admin?per_page=5&page=9")
	if !strings.Contains(body, "Page 2 of 2 (8 leads)") {
		t.Fatalf("expected clamped second page:\n%s", body)
	}
	if !strings.Contains(body, "Previous") || strings.Contains(body, ">Next<") {
		t.Fatalf("unexpected pager links")
	}
}

func TestDashboardKeepsOtherSourcesWhenOneFails(t *testing.T) {
	api := newFakeAPI(t)
	api.override(http.MethodGet, "/leads/dpf", http.StatusInternalServerError, `{"success":false,"error":"Unable to fetch leads"}`)
	app := newTestApp(t, api, false)

	resp, body := get(t, newBrowser(t), app.URL+"/admin")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Failed to load DPF leads: Unable to fetch leads") {
		t.Fatalf("expected dpf error on page")
	}
	if !strings.Contains(body, "John Doe") || strings.Contains(body, "DPF Tester") {
		t.Fatalf("expected remaining sources only")
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api, true)
	browser := newBrowser(t)
	signIn(t, browser, app.URL, "admin@example.com", "secret")

	api.override(http.MethodGet, "/leads/pcp", http.StatusUnauthorized, `{"success":false,"message":"Unauthorized"}`)
	resp, _ := get(t, browser, app.URL+"/admin")
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), "/login") {
		t.Fatalf("expected redirect to login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	cleared := 0
	for _, c := range resp.Cookies() {
		if (c.Name == session.TokenCookie || c.Name == session.UserCookie) && c.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 2 {
		t.Fatalf("expected both session cookies cleared, got %d", cleared)
	}

	resp, _ = get(t, browser, app.URL+"/admin")
	if resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected session to be gone, got %q", resp.Header.Get("Location"))
	}
}

func TestExportCSV(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	resp, body := get(t, newBrowser(t), app.URL+"/admin/export.csv?group=pcp")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	disposition := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(disposition, `attachment; filename="leads_export_`) || !strings.HasSuffix(disposition, `.csv"`) {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	lines := strings.Split(body, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], `"CMLQVCFI",`) {
		t.Fatalf("unexpected csv:\n%s", body)
	}
}

func TestExportXLSX(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	resp, body := get(t, newBrowser(t), app.URL+"/admin/export.xlsx")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	book, err := excelize.OpenReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows("Leads")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 9 {
		t.Fatalf("expected header plus 8 leads, got %d rows", len(rows))
	}
}

func TestLeadDetailWorkflowTab(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	resp, body := get(t, newBrowser(t), app.URL+"/admin/leads/pcp/"+pcpID+"?tab=workflow")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, want := range []string{"Signature / LOA", "Claim Data", "Send no-signature email", "Mark signature verified", "check_signature"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q on detail page", want)
		}
	}
	if strings.Contains(body, " disabled") {
		t.Fatalf("workflow actions should be enabled for a signed check_signature lead")
	}
}

func TestLeadDetailFailureStillShowsCore(t *testing.T) {
	api := newFakeAPI(t)
	api.override(http.MethodGet, "/leads/pcp/"+pcpID, http.StatusInternalServerError, `{"success":false,"message":"Internal Server Error"}`)
	app := newTestApp(t, api, false)

	resp, body := get(t, newBrowser(t), app.URL+"/admin/leads/pcp/"+pcpID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Failed to load lead details") || !strings.Contains(body, "Steven Tester") {
		t.Fatalf("expected error text alongside core fields:\n%s", body)
	}
}

func TestLeadDetailGenericLead(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	browser := newBrowser(t)

	_, body := get(t, browser, app.URL+"/admin/leads/fairpay/1?tab=campaign")
	if !strings.Contains(body, "Campaign Data") || !strings.Contains(body, "Morrisons London") {
		t.Fatalf("expected campaign data tab:\n%s", body)
	}
	if strings.Contains(body, "Milestones") {
		t.Fatalf("generic leads have no milestones tab")
	}

	if resp, _ := get(t, browser, app.URL+"/admin/leads/fairpay/999"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown lead, got %d", resp.StatusCode)
	}
	if resp, _ := get(t, browser, app.URL+"/admin/leads/nope/1"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown source, got %d", resp.StatusCode)
	}
}

func workflowToken(t *testing.T, c *http.Client, base string) string {
	t.Helper()
	_, body := get(t, c, base+"/admin/leads/pcp/"+pcpID+"?tab=workflow")
	return csrfToken(t, body)
}

func TestVerifySignaturePostsStatus(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api, false)
	browser := newBrowser(t)

	resp := postForm(t, browser, app.URL+"/admin/leads/pcp/"+pcpID+"/verify-signature", url.Values{
		"gorilla.csrf.Token": {workflowToken(t, browser, app.URL)},
	})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); !strings.HasSuffix(got, "?tab=workflow&message=Signature+marked+as+verified") {
		t.Fatalf("unexpected redirect %q", got)
	}
	calls := api.requests(http.MethodPost, "/leads/pcp/update-status")
	if len(calls) != 1 {
		t.Fatalf("expected one update-status call, got %d", len(calls))
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(calls[0].Body), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["leadId"] != pcpID || payload["status"] != "signature_verified" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestNotifyNoSignatureReportsBackendFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.override(http.MethodPost, "/leads/pcp/"+pcpID+"/send-email", http.StatusBadGateway, `{"success":false,"message":"Mail provider down"}`)
	app := newTestApp(t, api, false)
	browser := newBrowser(t)

	resp := postForm(t, browser, app.URL+"/admin/leads/pcp/"+pcpID+"/notify-no-signature", url.Values{
		"gorilla.csrf.Token": {workflowToken(t, browser, app.URL)},
	})
	if got := resp.Header.Get("Location"); !strings.HasSuffix(got, "&error=Mail+provider+down") {
		t.Fatalf("unexpected redirect %q", got)
	}
}

func TestNotifyRefusedWhenLeadNotAwaitingSignature(t *testing.T) {
	api := newFakeAPI(t)
	detail := strings.ReplaceAll(string(fixtures.MustLoad(fixtures.PCPLeadDetail)), `"check_signature"`, `"active"`)
	api.override(http.MethodGet, "/leads/pcp/"+pcpID, http.StatusOK, detail)
	app := newTestApp(t, api, false)
	browser := newBrowser(t)

	resp := postForm(t, browser, app.URL+"/admin/leads/pcp/"+pcpID+"/notify-no-signature", url.Values{
		"gorilla.csrf.Token": {workflowToken(t, browser, app.URL)},
	})
	if got := resp.Header.Get("Location"); !strings.HasSuffix(got, "&error=Lead+is+not+awaiting+a+signature") {
		t.Fatalf("unexpected redirect %q", got)
	}
	if calls := api.requests(http.MethodPost, "/leads/pcp/"+pcpID+"/send-email"); len(calls) != 0 {
		t.Fatalf("send-email must not be called, got %d calls", len(calls))
	}
}

func TestWorkflowPostRequiresCSRFToken(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api, false)
	resp := postForm(t, newBrowser(t), app.URL+"/admin/leads/pcp/"+pcpID+"/verify-signature", url.Values{})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if calls := api.requests(http.MethodPost, "/leads/pcp/update-status"); len(calls) != 0 {
		t.Fatalf("update-status must not be called")
	}
}

func TestSignatureImagePreview(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1200, 400))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	detail := strings.Replace(string(fixtures.MustLoad(fixtures.PCPLeadDetail)), `"signatureImagePng": ""`, `"signatureImagePng": "`+dataURL+`"`, 1)

	api := newFakeAPI(t)
	api.override(http.MethodGet, "/leads/pcp/"+pcpID, http.StatusOK, detail)
	app := newTestApp(t, api, false)

	resp, body := get(t, newBrowser(t), app.URL+"/admin/leads/pcp/"+pcpID+"/signature.png")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 600 || b.Dy() != 200 {
		t.Fatalf("unexpected preview size %dx%d", b.Dx(), b.Dy())
	}
}

func TestSignatureImageMissing(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	resp, _ := get(t, newBrowser(t), app.URL+"/admin/leads/pcp/"+pcpID+"/signature.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without an image, got %d", resp.StatusCode)
	}
}

func TestStatsPage(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), false)
	_, body := get(t, newBrowser(t), app.URL+"/admin/stats?period=all")
	for _, want := range []string{"All Time", "<strong>8</strong> Total", "<strong>3</strong> Sold", "37.5%", "morrisons"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q on stats page:\n%s", want, body)
		}
	}
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), true)
	browser := newBrowser(t)
	signIn(t, browser, app.URL, "admin@example.com", "secret")

	_, page := get(t, browser, app.URL+"/admin")
	resp := postForm(t, browser, app.URL+"/logout", url.Values{"gorilla.csrf.Token": {csrfToken(t, page)}})
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = get(t, browser, app.URL+"/admin")
	if resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected admin to require login again")
	}
}

func TestAppCSS(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), true)
	resp, body := get(t, newBrowser(t), app.URL+"/assets/app.css")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css") || body == "" {
		t.Fatalf("unexpected css response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestPagesCarrySecurityHeaders(t *testing.T) {
	app := newTestApp(t, newFakeAPI(t), true)
	browser := newBrowser(t)
	for _, path := range []string{"/login", "/missing"} {
		resp, _ := get(t, browser, app.URL+path)
		csp := resp.Header.Get("Content-Security-Policy")
		if resp.Header.Get("X-Frame-Options") != "DENY" || !strings.Contains(csp, "frame-ancestors 'none'") {
			t.Fatalf("%s: missing security headers: %v", path, resp.Header)
		}
	}
}
