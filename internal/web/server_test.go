package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/auth"
	"folio/internal/backup"
	"folio/internal/bridge"
	"folio/internal/database"
	"folio/internal/page"
	"folio/internal/relay"
	"folio/internal/render"
	"folio/internal/wikidb"
)

var memCounter atomic.Int64

type testEnv struct {
	srv      *httptest.Server
	relay    relay.Relay
	auth     *auth.Service
	glotDown atomic.Bool
}

func newTestEnv(t *testing.T, authEnabled bool) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dsn := fmt.Sprintf("file:webtest%d?mode=memory&cache=shared", memCounter.Add(1))
	db, dialect, err := database.New(ctx, "sqlite3", dsn, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(ctx, db, dialect); err != nil {
		t.Fatal(err)
	}

	r := relay.NewLocal(5 * time.Second)
	t.Cleanup(func() { r.Close() })
	stop, err := wikidb.Serve(r, "wikidb.queue", wikidb.NewLocal(page.NewRepository(db, dialect)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(stop)
	pages := wikidb.NewProxy(r, "wikidb.queue")

	authService, err := auth.NewService(auth.NewRepository(db, dialect), "", authEnabled)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{relay: r, auth: authService}
	glot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.glotDown.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"id":"snap1"}`)
	}))
	t.Cleanup(glot.Close)

	server, err := NewServer(ctx, Options{
		Pages:     pages,
		Renderer:  render.NewMarkdown("friendly"),
		Style:     "friendly",
		Relay:     r,
		Auth:      authService,
		Tokens:    auth.NewTokenService("test-secret", time.Minute),
		Backup:    backup.NewService(pages, backup.NewGlot(glot.URL, "")),
		RateLimit: 100,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	env.srv = httptest.NewServer(server)
	t.Cleanup(env.srv.Close)
	return env
}

// client does not follow redirects so tests can assert on them.
func (e *testEnv) client(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func do(t *testing.T, c *http.Client, method, url, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

var formHeader = map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

type listResponse struct {
	Success bool `json:"success"`
	Pages   []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"pages"`
}

func TestAPIScenario(t *testing.T) {
	env := newTestEnv(t, false)
	c := env.client(t)
	base := env.srv.URL

	resp, _ := do(t, c, http.MethodPost, base+"/api/pages", `{"name":"Sample","markdown":"# A page"}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201", resp.StatusCode)
	}

	resp, body := do(t, c, http.MethodGet, base+"/api/pages", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET list status = %d", resp.StatusCode)
	}
	var list listResponse
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatal(err)
	}
	if !list.Success || len(list.Pages) != 1 || list.Pages[0].Name != "Sample" {
		t.Fatalf("GET list = %s", body)
	}
	id := list.Pages[0].ID
	pageURL := fmt.Sprintf("%s/api/pages/%d", base, id)

	resp, body = do(t, c, http.MethodPut, pageURL, `{"markdown":"Oh Yeah!"}`, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"success":true`) {
		t.Fatalf("PUT = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, c, http.MethodGet, pageURL, "", nil)
	var got struct {
		Success bool `json:"success"`
		Page    struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			Markdown string `json:"markdown"`
			HTML     string `json:"html"`
		} `json:"page"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || got.Page.Markdown != "Oh Yeah!" || !strings.Contains(got.Page.HTML, "Oh Yeah!") {
		t.Fatalf("GET page = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, c, http.MethodDelete, pageURL, "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"success":true`) {
		t.Fatalf("DELETE = %d %s", resp.StatusCode, body)
	}

	_, body = do(t, c, http.MethodGet, base+"/api/pages", "", nil)
	list = listResponse{}
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatal(err)
	}
	if !list.Success || len(list.Pages) != 0 {
		t.Errorf("GET list after delete = %s", body)
	}
}

func TestAPIErrors(t *testing.T) {
	env := newTestEnv(t, false)
	c := env.client(t)
	base := env.srv.URL

	do(t, c, http.MethodPost, base+"/api/pages", `{"name":"Dup","markdown":"x"}`, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		error  string
	}{
		{name: "missing markdown", method: http.MethodPost, path: "/api/pages", body: `{"name":"X"}`, want: http.StatusBadRequest, error: "Bad request payload"},
		{name: "missing name", method: http.MethodPost, path: "/api/pages", body: `{"markdown":"X"}`, want: http.StatusBadRequest, error: "Bad request payload"},
		{name: "not json", method: http.MethodPost, path: "/api/pages", body: `nope`, want: http.StatusBadRequest, error: "Bad request payload"},
		{name: "duplicate", method: http.MethodPost, path: "/api/pages", body: `{"name":"Dup","markdown":"y"}`, want: http.StatusConflict},
		{name: "unknown id", method: http.MethodGet, path: "/api/pages/4242", want: http.StatusNotFound, error: "There is no page with ID 4242"},
		{name: "bad id", method: http.MethodGet, path: "/api/pages/abc", want: http.StatusBadRequest},
		{name: "update without markdown", method: http.MethodPut, path: "/api/pages/1", body: `{}`, want: http.StatusBadRequest, error: "Bad request payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, c, tt.method, base+tt.path, tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
			if !strings.Contains(body, `"success":false`) {
				t.Errorf("body = %s, want failure", body)
			}
			if tt.error != "" && !strings.Contains(body, tt.error) {
				t.Errorf("body = %s, want error %q", body, tt.error)
			}
		})
	}
}

func TestAPIEmptyPageKeepsAllFields(t *testing.T) {
	env := newTestEnv(t, false)
	c := env.client(t)
	base := env.srv.URL

	resp, body := do(t, c, http.MethodPost, base+"/api/pages", `{"name":"Empty","markdown":""}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST = %d %s", resp.StatusCode, body)
	}

	_, body = do(t, c, http.MethodGet, base+"/api/pages", "", nil)
	var list listResponse
	if err := json.Unmarshal([]byte(body), &list); err != nil || len(list.Pages) != 1 {
		t.Fatalf("GET list = %s (%v)", body, err)
	}
	if strings.Contains(body, `"markdown"`) || strings.Contains(body, `"html"`) {
		t.Errorf("GET list = %s, want only id and name per page", body)
	}

	resp, body = do(t, c, http.MethodGet, fmt.Sprintf("%s/api/pages/%d", base, list.Pages[0].ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET page = %d %s", resp.StatusCode, body)
	}
	var got struct {
		Page map[string]json.RawMessage `json:"page"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "name", "markdown", "html"} {
		if _, ok := got.Page[key]; !ok {
			t.Errorf("GET page = %s, missing %q", body, key)
		}
	}
	if string(got.Page["markdown"]) != `""` {
		t.Errorf("markdown = %s, want empty string", got.Page["markdown"])
	}
}

func TestHTMLPageLifecycle(t *testing.T) {
	env := newTestEnv(t, false)
	c := env.client(t)
	base := env.srv.URL
	hdr := formHeader

	resp, _ := do(t, c, http.MethodPost, base+"/action/create", url.Values{"name": {"Notes"}}.Encode(), hdr)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/wiki/Notes" {
		t.Fatalf("create = %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = do(t, c, http.MethodPost, base+"/action/create", url.Values{"name": {""}}.Encode(), hdr)
	if resp.Header.Get("Location") != "/" {
		t.Errorf("create empty name Location = %q, want /", resp.Header.Get("Location"))
	}

	resp, body := do(t, c, http.MethodGet, base+"/wiki/Notes", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Feel-free to write in Markdown!") || !strings.Contains(body, `name="newPage" value="yes"`) {
		t.Fatalf("view new page = %d %s", resp.StatusCode, body)
	}

	save := url.Values{"id": {"-1"}, "title": {"Notes"}, "markdown": {"# Notes\n\nfirst"}, "newPage": {"yes"}}
	resp, _ = do(t, c, http.MethodPost, base+"/action/save", save.Encode(), hdr)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/wiki/Notes" {
		t.Fatalf("save new = %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = do(t, c, http.MethodPost, base+"/action/save", save.Encode(), hdr)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("save duplicate = %d, want 409", resp.StatusCode)
	}

	_, body = do(t, c, http.MethodGet, base+"/api/pages", "", nil)
	var list listResponse
	if err := json.Unmarshal([]byte(body), &list); err != nil || len(list.Pages) != 1 {
		t.Fatalf("list = %s", body)
	}
	id := fmt.Sprint(list.Pages[0].ID)

	sub, err := env.relay.Subscribe(context.Background(), bridge.TopicPageSaved)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	update := url.Values{"id": {id}, "title": {"Notes"}, "markdown": {"# Notes\n\nsecond"}, "client": {"tab-1"}}
	resp, _ = do(t, c, http.MethodPost, base+"/action/save", update.Encode(), hdr)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("save existing = %d", resp.StatusCode)
	}
	select {
	case raw := <-sub.C:
		var ev bridge.PageSaved
		if err := json.Unmarshal(raw, &ev); err != nil || fmt.Sprint(ev.ID) != id || ev.Client != "tab-1" {
			t.Errorf("page.saved event = %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Error("no page.saved event")
	}

	_, body = do(t, c, http.MethodGet, base+"/wiki/Notes", "", nil)
	if !strings.Contains(body, "second") {
		t.Errorf("view after save = %s", body)
	}

	resp, body = do(t, c, http.MethodPost, base+"/action/diff", url.Values{"id": {id}, "markdown": {"# Notes\n\nzzz"}}.Encode(), hdr)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "<ins>zzz</ins>") {
		t.Errorf("diff = %d %s", resp.StatusCode, body)
	}

	_, body = do(t, c, http.MethodGet, base+"/", "", nil)
	if !strings.Contains(body, `href="/wiki/Notes"`) {
		t.Errorf("index = %s", body)
	}

	resp, _ = do(t, c, http.MethodPost, base+"/action/delete", url.Values{"id": {id}}.Encode(), hdr)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	_, body = do(t, c, http.MethodGet, base+"/", "", nil)
	if !strings.Contains(body, "The wiki is currently empty!") {
		t.Errorf("index after delete = %s", body)
	}
}

func TestBackupAndPreview(t *testing.T) {
	env := newTestEnv(t, false)
	c := env.client(t)
	base := env.srv.URL

	resp, body := do(t, c, http.MethodGet, base+"/action/backup", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "https://glot.io/snippets/snap1") {
		t.Errorf("backup = %d %s", resp.StatusCode, body)
	}

	env.glotDown.Store(true)
	resp, _ = do(t, c, http.MethodGet, base+"/action/backup", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("backup with failing upstream = %d, want 502", resp.StatusCode)
	}

	resp, body = do(t, c, http.MethodPost, base+"/app/markdown", "# Preview", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Preview</h1>") {
		t.Errorf("preview = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, c, http.MethodGet, base+"/static/chroma.css", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, ".chroma") {
		t.Errorf("chroma.css = %d", resp.StatusCode)
	}

	resp, body = do(t, c, http.MethodGet, base+"/app/", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "/app/app.js") {
		t.Errorf("editor = %d", resp.StatusCode)
	}
}

func TestAuthEnabled(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	if err := env.auth.RegisterUser(ctx, "foo", "bar", "writer"); err != nil {
		t.Fatal(err)
	}
	if err := env.auth.RegisterUser(ctx, "root", "w00t", "admin"); err != nil {
		t.Fatal(err)
	}
	base := env.srv.URL
	hdr := formHeader

	anon := env.client(t)
	resp, _ := do(t, anon, http.MethodGet, base+"/wiki/Home", "", nil)
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), "/login") {
		t.Fatalf("anonymous view = %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	writer := env.client(t)
	resp, body := do(t, writer, http.MethodPost, base+"/login-auth", url.Values{"username": {"foo"}, "password": {"nope"}}.Encode(), hdr)
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Invalid credentials") {
		t.Fatalf("bad login = %d", resp.StatusCode)
	}
	resp, _ = do(t, writer, http.MethodPost, base+"/login-auth", url.Values{"username": {"foo"}, "password": {"bar"}, "return_url": {"/wiki/Home"}}.Encode(), hdr)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/wiki/Home" {
		t.Fatalf("login = %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = do(t, writer, http.MethodGet, base+"/wiki/Home", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("writer view = %d", resp.StatusCode)
	}
	resp, _ = do(t, writer, http.MethodPost, base+"/action/create", url.Values{"name": {"X"}}.Encode(), hdr)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("writer create = %d, want 403", resp.StatusCode)
	}
	resp, _ = do(t, writer, http.MethodPost, base+"/action/delete", url.Values{"id": {"1"}}.Encode(), hdr)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("writer delete = %d, want 403", resp.StatusCode)
	}

	resp, _ = do(t, writer, http.MethodGet, base+"/logout", "", nil)
	if resp.StatusCode != http.StatusFound {
		t.Errorf("logout = %d", resp.StatusCode)
	}
	resp, _ = do(t, writer, http.MethodGet, base+"/wiki/Home", "", nil)
	if resp.StatusCode != http.StatusFound {
		t.Errorf("view after logout = %d, want redirect", resp.StatusCode)
	}

	resp, _ = do(t, anon, http.MethodGet, base+"/api/pages", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("API without token = %d, want 401", resp.StatusCode)
	}
	resp, _ = do(t, anon, http.MethodGet, base+"/api/token", "", map[string]string{"login": "foo", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("token with bad password = %d, want 401", resp.StatusCode)
	}

	resp, writerToken := do(t, anon, http.MethodGet, base+"/api/token", "", map[string]string{"login": "foo", "password": "bar"})
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("token = %d", resp.StatusCode)
	}
	resp, _ = do(t, anon, http.MethodPost, base+"/api/pages", `{"name":"Y","markdown":"y"}`, map[string]string{"Authorization": "Bearer " + writerToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("writer API create = %d, want 401", resp.StatusCode)
	}

	_, rootToken := do(t, anon, http.MethodGet, base+"/api/token", "", map[string]string{"login": "root", "password": "w00t"})
	bearer := map[string]string{"Authorization": "Bearer " + rootToken}
	resp, _ = do(t, anon, http.MethodPost, base+"/api/pages", `{"name":"Y","markdown":"y"}`, bearer)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("admin API create = %d, want 201", resp.StatusCode)
	}
	resp, body = do(t, anon, http.MethodGet, base+"/api/pages", "", bearer)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"name":"Y"`) {
		t.Errorf("admin API list = %d %s", resp.StatusCode, body)
	}
}
