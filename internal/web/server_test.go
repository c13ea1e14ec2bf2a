package web

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/comments"
	"github.com/UkralStul/blog-web/internal/metrics"
	"github.com/UkralStul/blog-web/internal/mockapi"
	"github.com/UkralStul/blog-web/internal/query"
	"github.com/UkralStul/blog-web/internal/session"
	"github.com/UkralStul/blog-web/internal/storage"
	"github.com/UkralStul/blog-web/internal/storage/inmemory"
	redisstore "github.com/UkralStul/blog-web/internal/storage/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const threadRoute = "/api/comments/for_post/"

type testEnv struct {
	backend *mockapi.Server
	seed    *mockapi.Fixture
	site    *httptest.Server
	browser *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, inmemory.New(time.Hour))
}

func newTestEnvWithStore(t *testing.T, sessions storage.Storage) *testEnv {
	store := mockapi.NewStore()
	seed, err := mockapi.Seed(store)
	require.NoError(t, err)
	backend := mockapi.NewServer(store)
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	m := metrics.New()
	client, err := api.New(backendSrv.URL+"/api", api.WithObserver(m))
	require.NoError(t, err)
	q := query.New(query.Options{StaleTime: time.Hour}, zap.NewNop(), m)

	srv, err := NewServer(Deps{
		API:      client,
		Query:    q,
		Comments: comments.NewComposer(client, q, zap.NewNop(), m),
		Sessions: session.NewManager(sessions, client, zap.NewNop(), m),
		Metrics:  m.Handler(),
		Log:      zap.NewNop(),
	})
	require.NoError(t, err)
	site := httptest.NewServer(srv)
	t.Cleanup(site.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	browser := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{backend: backend, seed: seed, site: site, browser: browser}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.browser.Get(e.site.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.browser.PostForm(e.site.URL+path, form)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp := e.post(t, "/login", url.Values{"email": {mockapi.DemoEmail}, "password": {mockapi.DemoPassword}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestGate_RedirectsAnonymousToLogin(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/dashboard", "/profile", "/write"} {
		resp, _ := e.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}

	_, body := e.get(t, "/login")
	assert.Contains(t, body, "Please login to access the dashboard")

	// Notifications are shown once.
	_, body = e.get(t, "/login")
	assert.NotContains(t, body, "Please login to access the dashboard")
}

func TestGate_LoginThenLogout(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp, body := e.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome back, Dana!")
	assert.Contains(t, body, "Total posts: 3")

	resp = e.post(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = e.get(t, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/login", url.Values{"email": {mockapi.DemoEmail}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.get(t, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.get(t, "/blog/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `href="/blog"`)
	assert.Contains(t, body, "post you are looking for")

	resp, body = e.get(t, "/blog/category/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "category you are looking for")

	resp, _ = e.get(t, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBlog_CategoryFilter(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.get(t, "/blog?category="+e.seed.Go.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Concurrency patterns")
	assert.Contains(t, body, "Error handling in practice")
	assert.NotContains(t, body, "Readable typography")

	_, body = e.get(t, "/blog/category/design")
	assert.Contains(t, body, "Readable typography")
	assert.NotContains(t, body, "Concurrency patterns")
}

func TestBlog_ResultsFragment(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.get(t, "/blog/results?search=typography")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-View-Epoch"))
	assert.Contains(t, body, "Readable typography")
	assert.NotContains(t, body, "Concurrency patterns")
	assert.NotContains(t, body, "<html")
}

func TestPostDetail_RendersThreadWithReplyCap(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	postID := e.seed.Posts[0].ID

	resp, body := e.get(t, "/blog/"+postID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Comments (4)")
	assert.Contains(t, body, "Will there be a part two?")
	assert.Contains(t, body, "/comments/"+e.seed.DeepID.String()+"/replies")
	assert.Contains(t, body, "<p>Goroutines and channels.</p>", "post content is rendered verbatim")
}

func TestComments_SubmitRefetchesOnce(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	postID := e.seed.Posts[0].ID

	e.get(t, "/blog/"+postID)
	require.Equal(t, 1, e.backend.Calls("GET", threadRoute))

	resp := e.post(t, "/blog/"+postID+"/comments", url.Values{"content": {"Fresh thoughts"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/blog/"+postID+"#comments", resp.Header.Get("Location"))
	assert.Equal(t, 2, e.backend.Calls("GET", threadRoute))

	_, body := e.get(t, "/blog/"+postID)
	assert.Contains(t, body, "Fresh thoughts")
	assert.Contains(t, body, "Comment added!")
	assert.Contains(t, body, "Comments (5)")
	assert.Equal(t, 2, e.backend.Calls("GET", threadRoute))
}

func TestComments_ReplyAndValidation(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	postID := e.seed.Posts[0].ID

	e.post(t, "/blog/"+postID+"/comments", url.Values{"content": {"   "}})
	_, body := e.get(t, "/blog/"+postID)
	assert.Contains(t, body, "Comment cannot be empty")

	e.post(t, "/blog/"+postID+"/comments/"+e.seed.DeepID.String()+"/replies", url.Values{"content": {"too deep"}, "depth": {"3"}})
	_, body = e.get(t, "/blog/"+postID)
	assert.Contains(t, body, "Replies are not allowed this deep")
	assert.Zero(t, e.backend.Calls("POST", "/api/comments/"))

	e.post(t, "/blog/"+postID+"/comments/"+e.seed.DeepID.String()+"/replies", url.Values{"content": {"A third level"}, "depth": {"2"}})
	_, body = e.get(t, "/blog/"+postID)
	assert.Contains(t, body, "Reply added!")
	assert.Contains(t, body, "A third level")
	assert.Equal(t, 1, e.backend.Calls("POST", "/api/comments/"))
}

func TestComments_AnonymousSubmitIsGated(t *testing.T) {
	e := newTestEnv(t)
	postID := e.seed.Posts[0].ID

	resp := e.post(t, "/blog/"+postID+"/comments", url.Values{"content": {"hi"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Zero(t, e.backend.Calls("POST", "/api/comments/"))
}

func TestWrite_CreatesPost(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp := e.post(t, "/write", url.Values{
		"title":    {"A new post"},
		"category": {e.seed.Design.ID},
		"status":   {"published"},
		"content":  {"<p>Hello</p>"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/blog/"))

	_, body := e.get(t, loc)
	assert.Contains(t, body, "Post published successfully!")

	_, body = e.get(t, "/blog?category="+e.seed.Design.ID)
	assert.Contains(t, body, "A new post")
}

func TestWrite_ServesNewPostFromResponse(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp := e.post(t, "/write", url.Values{
		"title":    {"Primed draft"},
		"category": {e.seed.Go.ID},
		"status":   {"draft"},
		"content":  {"<p>Draft body</p>"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body := e.get(t, resp.Header.Get("Location"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Primed draft")
	assert.Contains(t, body, "Draft saved!")
	assert.Zero(t, e.backend.Calls("GET", "/api/posts/{id}/"), "the create response is reused")
}

func TestWrite_EditsOwnPost(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	id := e.seed.Posts[1].ID

	resp, body := e.get(t, "/write?edit="+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Edit post")
	assert.Contains(t, body, `name="edit" value="`+id+`"`)
	assert.Contains(t, body, `value="Error handling in practice"`)

	_, body = e.get(t, "/blog/"+id)
	require.Contains(t, body, "Error handling in practice")

	resp = e.post(t, "/write", url.Values{
		"edit":     {id},
		"title":    {"Error handling, revisited"},
		"category": {e.seed.Go.ID},
		"status":   {"published"},
		"content":  {"<p>Wrap errors with context.</p>"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/blog/"+id, resp.Header.Get("Location"))
	assert.Equal(t, 1, e.backend.Calls("PATCH", "/api/posts/{id}/"))
	assert.Zero(t, e.backend.Calls("POST", "/api/posts/"))

	_, body = e.get(t, "/blog/"+id)
	assert.Contains(t, body, "Error handling, revisited")
	assert.Contains(t, body, "Post published successfully!")

	_, body = e.get(t, "/blog")
	assert.Contains(t, body, "Error handling, revisited")
}

func TestWrite_EditOfForeignPostIsNotFound(t *testing.T) {
	e := newTestEnv(t)
	resp := e.post(t, "/register", url.Values{
		"username":         {"other"},
		"email":            {"other@example.com"},
		"password":         {"long-password"},
		"password_confirm": {"long-password"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body := e.get(t, "/write?edit="+e.seed.Posts[0].ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Back to dashboard")
}

func TestListings_NewestPublicationFirst(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	write := func(v url.Values) string {
		resp := e.post(t, "/write", v)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		return strings.TrimPrefix(resp.Header.Get("Location"), "/blog/")
	}
	late := write(url.Values{"title": {"Drafted first"}, "category": {e.seed.Design.ID}, "status": {"draft"}, "content": {"<p>a</p>"}})
	write(url.Values{"title": {"Written second"}, "category": {e.seed.Design.ID}, "status": {"published"}, "content": {"<p>b</p>"}})
	write(url.Values{"edit": {late}, "title": {"Drafted first"}, "category": {e.seed.Design.ID}, "status": {"published"}, "content": {"<p>a</p>"}})

	for _, path := range []string{"/", "/blog", "/blog/category/" + e.seed.Design.Slug} {
		_, body := e.get(t, path)
		first, second := strings.Index(body, "Drafted first"), strings.Index(body, "Written second")
		require.NotEqual(t, -1, first, path)
		require.NotEqual(t, -1, second, path)
		assert.Less(t, first, second, path)
	}
}

func TestWrite_RejectsEmptyContent(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp := e.post(t, "/write", url.Values{"title": {"x"}, "category": {e.seed.Go.ID}, "status": {"draft"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Zero(t, e.backend.Calls("POST", "/api/posts/"))
}

func TestProfile_Update(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp := e.post(t, "/profile", url.Values{"first_name": {"Dora"}, "last_name": {"Demo"}, "email": {mockapi.DemoEmail}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := e.get(t, "/profile")
	assert.Contains(t, body, "Profile updated successfully!")
	assert.Contains(t, body, `value="Dora"`)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	e.get(t, "/blog")
	_, body = e.get(t, "/metrics")
	assert.Contains(t, body, "blogweb_query_cache_misses_total")
}

func TestSessionFeed_PushesLogin(t *testing.T) {
	e := newTestEnv(t)
	// Establish the session cookie first.
	e.get(t, "/")

	u, err := url.Parse(e.site.URL)
	require.NoError(t, err)
	header := http.Header{}
	for _, c := range e.browser.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}
	wsURL := "ws" + strings.TrimPrefix(e.site.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	var state session.Change
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, session.ChangeState, state.Kind)
	assert.False(t, state.Authenticated)

	e.login(t)

	// The pre-login id only learns that it was replaced.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var change session.Change
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, session.ChangeRenewed, change.Kind)
	assert.Equal(t, state.SessionID, change.SessionID)
	assert.False(t, change.Authenticated)
	assert.Nil(t, change.User)

	header = http.Header{}
	for _, c := range e.browser.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}
	fresh, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer fresh.Close()
	require.NoError(t, fresh.ReadJSON(&state))
	assert.Equal(t, session.ChangeState, state.Kind)
	assert.True(t, state.Authenticated)
	assert.NotEqual(t, change.SessionID, state.SessionID)
}

func (e *testEnv) sessionCookie(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(e.site.URL)
	require.NoError(t, err)
	for _, c := range e.browser.Jar.Cookies(u) {
		if c.Name == "blog_session" {
			return c.Value
		}
	}
	return ""
}

func TestLogin_ReissuesSessionCookie(t *testing.T) {
	e := newTestEnv(t)
	e.get(t, "/")
	planted := e.sessionCookie(t)
	require.NotEmpty(t, planted)

	e.login(t)
	renewed := e.sessionCookie(t)
	assert.NotEqual(t, planted, renewed)

	// A second browser holding the pre-login cookie stays anonymous.
	u, err := url.Parse(e.site.URL)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "blog_session", Value: planted, Path: "/"}})
	other := &http.Client{Jar: jar, CheckRedirect: e.browser.CheckRedirect}
	resp, err := other.Get(e.site.URL + "/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body := e.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome back, Dana!")
}

func TestSession_CorruptStoredValueStartsFresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	e := newTestEnvWithStore(t, redisstore.NewWithClient(client, time.Hour))

	u, err := url.Parse(e.site.URL)
	require.NoError(t, err)
	e.browser.Jar.SetCookies(u, []*http.Cookie{{Name: "blog_session", Value: "stale", Path: "/"}})
	require.NoError(t, mr.Set(redisstore.KeyPrefix+"stale", `{"id":"stale","user":{"id":{"pk":1}}}`))

	resp, _ := e.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, "stale", e.sessionCookie(t))
	assert.False(t, mr.Exists(redisstore.KeyPrefix+"stale"))

	e.login(t)
	resp, _ = e.get(t, "/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}
