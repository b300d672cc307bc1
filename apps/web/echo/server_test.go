package echoweb

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/querycache"
	"github.com/trezcool/quizboard/session"
	"github.com/trezcool/quizboard/storage/inmem"
	"github.com/trezcool/quizboard/tests"
)

const testCookie = "quizboard_test"

type harness struct {
	backend *testutil.Backend
	store   *inmem.Store
	server  *Server
	web     *httptest.Server
}

func newTestConfig(backendURL string) *core.Config {
	return &core.Config{
		Env:       "TEST",
		Debug:     true,
		TestMode:  true,
		AppName:   "Quizboard",
		SecretKey: "test-secret",
		Server:    core.ServerConfig{DisableReqLogs: true},
		Backend:   core.BackendConfig{BaseURL: backendURL},
		Session:   core.SessionConfig{CookieName: testCookie, MaxAge: time.Hour},
		Cache:     core.CacheConfig{TTL: time.Minute},
	}
}

func setupWith(t *testing.T, backendURL string) *harness {
	t.Helper()
	conf := newTestConfig(backendURL)
	logger := testutil.NewLogger()
	cache := querycache.New(querycache.NewMemoryStore(0), conf.Cache.TTL, logger)
	store := inmem.NewStore()

	srv, err := NewServer(&Options{
		Conf:      conf,
		Logger:    logger,
		Sessions:  session.NewManager(store, NewProfileLoader(conf, nil, cache, logger), logger),
		Cache:     cache,
		Validator: core.NewValidator(),
	})
	require.NoError(t, err)

	web := httptest.NewServer(srv)
	t.Cleanup(web.Close)
	return &harness{store: store, server: srv, web: web}
}

func setup(t *testing.T) *harness {
	t.Helper()
	backend := testutil.NewBackend(t)
	h := setupWith(t, backend.URL())
	h.backend = backend
	return h
}

// browser is one visitor with its own cookie jar; redirects are not followed.
type browser struct {
	t      *testing.T
	h      *harness
	client *http.Client
}

func (h *harness) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t: t,
		h: h,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	code     int
	location string
	body     string
}

func (b *browser) do(req *http.Request) response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return response{code: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.h.web.URL+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.h.web.URL+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) login(email, pwd string) {
	b.t.Helper()
	resp := b.post("/login", url.Values{"email": {email}, "password": {pwd}})
	require.Equal(b.t, http.StatusSeeOther, resp.code, resp.body)
	require.Equal(b.t, studentPath, resp.location)
}

// sessionID decodes the browser's session cookie.
func (b *browser) sessionID() string {
	b.t.Helper()
	u, err := url.Parse(b.h.web.URL)
	require.NoError(b.t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == testCookie {
			sid, err := b.h.server.cookies.decode(c.Value)
			require.NoError(b.t, err)
			return sid
		}
	}
	b.t.Fatal("no session cookie")
	return ""
}

// token returns the backend token stored for the browser's session.
func (b *browser) token() string {
	b.t.Helper()
	tok, _, err := b.h.store.Get(context.Background(), b.sessionID(), session.KeyToken)
	require.NoError(b.t, err)
	return tok
}

func TestServer_guards(t *testing.T) {
	h := setup(t)
	h.backend.CreateUser(t, "ada", "ada@test.cd", "secret")

	tests := []struct {
		name         string
		path         string
		signedIn     bool
		wantCode     int
		wantLocation string
	}{
		{name: "home is public", path: "/", wantCode: http.StatusOK},
		{name: "login is open to guests", path: "/login", wantCode: http.StatusOK},
		{name: "register is open to guests", path: "/register", wantCode: http.StatusOK},
		{name: "profile needs a token", path: "/profile", wantCode: http.StatusFound, wantLocation: loginPath},
		{name: "teacher needs a token", path: "/teacher", wantCode: http.StatusFound, wantLocation: loginPath},
		{name: "student needs a token", path: "/student", wantCode: http.StatusFound, wantLocation: loginPath},
		{name: "group needs a token", path: "/group/1", wantCode: http.StatusFound, wantLocation: loginPath},
		{name: "task needs a token", path: "/task/1", wantCode: http.StatusFound, wantLocation: loginPath},
		{name: "signed-in users skip login", path: "/login", signedIn: true, wantCode: http.StatusFound, wantLocation: studentPath},
		{name: "signed-in users skip register", path: "/register", signedIn: true, wantCode: http.StatusFound, wantLocation: studentPath},
		{name: "signed-in home", path: "/", signedIn: true, wantCode: http.StatusOK},
		{name: "signed-in profile", path: "/profile", signedIn: true, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := h.browser(t)
			if tt.signedIn {
				b.login("ada@test.cd", "secret")
			}
			resp := b.get(tt.path)
			assert.Equal(t, tt.wantCode, resp.code)
			assert.Equal(t, tt.wantLocation, resp.location)
		})
	}
}

func TestServer_login(t *testing.T) {
	h := setup(t)
	h.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	b := h.browser(t)

	t.Run("invalid form", func(t *testing.T) {
		resp := b.post("/login", url.Values{"email": {"not-an-email"}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.code)
		assert.Contains(t, resp.body, "password is required")
		assert.Zero(t, h.backend.Calls("POST /auth/login"))
	})

	t.Run("bad credentials stay on the form", func(t *testing.T) {
		resp := b.post("/login", url.Values{"email": {"ada@test.cd"}, "password": {"wrong"}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.code)
		assert.Contains(t, resp.body, "Invalid email or password")
	})

	t.Run("success", func(t *testing.T) {
		b.login(" ADA@test.cd ", "secret")
		resp := b.get(studentPath)
		assert.Equal(t, http.StatusOK, resp.code)
		assert.Contains(t, resp.body, "ada")
		assert.Zero(t, h.backend.Calls("GET /profile"), "login returns the user")
	})
}

func TestServer_register(t *testing.T) {
	h := setup(t)
	h.backend.CreateUser(t, "taken", "taken@test.cd", "secret")

	t.Run("duplicate email", func(t *testing.T) {
		resp := h.browser(t).post("/register", url.Values{"username": {"bob"}, "email": {"taken@test.cd"}, "password": {"pwd"}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.code)
		assert.Contains(t, resp.body, "Email already registered")
	})

	t.Run("registers then signs in", func(t *testing.T) {
		b := h.browser(t)
		resp := b.post("/register", url.Values{"username": {"grace"}, "email": {"grace@test.cd"}, "password": {"pwd"}})
		assert.Equal(t, http.StatusSeeOther, resp.code)
		assert.Equal(t, studentPath, resp.location)
		assert.NotEmpty(t, b.token())
		assert.Equal(t, http.StatusOK, b.get(studentPath).code)
	})
}

func TestServer_register_loginFails(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/auth/register" {
			_, _ = io.WriteString(w, `{"message":"User registered successfully","user":{"id":1,"username":"grace"}}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"boom"}`)
	}))
	defer backend.Close()

	h := setupWith(t, backend.URL)
	resp := h.browser(t).post("/register", url.Values{"username": {"grace"}, "email": {"grace@test.cd"}, "password": {"pwd"}})
	assert.Equal(t, http.StatusOK, resp.code)
	assert.Contains(t, resp.body, registeredButLoginFailed)
}

func TestServer_logout(t *testing.T) {
	h := setup(t)
	h.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	b := h.browser(t)
	b.login("ada@test.cd", "secret")
	sid := b.sessionID()

	resp := b.post("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.code)
	assert.Equal(t, "/", resp.location)
	assert.Equal(t, 1, h.backend.Calls("DELETE /auth/logout"))

	_, found, err := h.store.Get(context.Background(), sid, session.KeyToken)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, loginPath, b.get(studentPath).location)
}

func TestServer_unauthorizedClearsSession(t *testing.T) {
	h := setup(t)
	h.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	b := h.browser(t)
	b.login("ada@test.cd", "secret")
	require.Equal(t, http.StatusOK, b.get("/teacher").code)

	h.backend.Revoke(b.token())
	h.backend.ResetCalls()

	// cached reads never reach the backend; a mutation does
	resp := b.post("/teacher/groups", url.Values{"title": {"Maths"}})
	assert.Equal(t, http.StatusFound, resp.code)
	assert.Equal(t, loginPath, resp.location)
	assert.Zero(t, h.store.Len(), "token and user are gone")

	resp = b.get("/teacher")
	assert.Equal(t, loginPath, resp.location)
	assert.Equal(t, 1, h.backend.Calls("POST /group"))
}

func TestServer_errorPage(t *testing.T) {
	h := setup(t)
	h.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	b := h.browser(t)
	b.login("ada@test.cd", "secret")

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantMsg  string
	}{
		{name: "backend 404", path: "/task/999", wantCode: http.StatusNotFound, wantMsg: "Task not found"},
		{name: "bad id", path: "/task/abc", wantCode: http.StatusNotFound, wantMsg: "Not found"},
		{name: "unknown route", path: "/nowhere", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := b.get(tt.path)
			assert.Equal(t, tt.wantCode, resp.code)
			assert.Contains(t, resp.body, tt.wantMsg)
		})
	}
}

func TestCookieCodec(t *testing.T) {
	conf := newTestConfig("")
	cc := newCookieCodec(conf)
	now := time.Now()

	raw, err := cc.encode("sid-1", now)
	require.NoError(t, err)
	sid, err := cc.decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)

	tests := []struct {
		name  string
		codec func() cookieCodec
		raw   func() string
	}{
		{name: "garbage", codec: func() cookieCodec { return cc }, raw: func() string { return "garbage" }},
		{name: "tampered", codec: func() cookieCodec { return cc }, raw: func() string { return raw + "x" }},
		{name: "other key", codec: func() cookieCodec {
			other := cc
			other.key = []byte("another-secret")
			return other
		}, raw: func() string { return raw }},
		{name: "expired", codec: func() cookieCodec { return cc }, raw: func() string {
			old, err := cc.encode("sid-1", now.Add(-2*time.Hour))
			require.NoError(t, err)
			return old
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec().decode(tt.raw())
			assert.Error(t, err)
		})
	}
}
