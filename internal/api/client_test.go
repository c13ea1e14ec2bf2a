package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/mockapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *mockapi.Fixture) {
	store := mockapi.NewStore()
	f, err := mockapi.Seed(store)
	require.NoError(t, err)

	srv := httptest.NewServer(mockapi.NewServer(store))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/api")
	require.NoError(t, err)
	return c, f
}

func login(t *testing.T, c *Client) context.Context {
	tokens, err := c.ObtainToken(context.Background(), mockapi.DemoEmail, mockapi.DemoPassword)
	require.NoError(t, err)
	return WithToken(context.Background(), tokens.Access)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("localhost:8000")
	assert.Error(t, err)
	_, err = New("::")
	assert.Error(t, err)
}

func TestListPosts_FilterByCategory(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	for _, cat := range []*domain.Category{f.Go, f.Design} {
		page, err := c.ListPosts(ctx, PostFilter{Status: domain.StatusPublished, Category: cat.ID})
		require.NoError(t, err)

		want := 0
		for _, p := range f.Posts {
			if p.Category.ID == cat.ID {
				want++
			}
		}
		require.Len(t, page.Results, want)
		for _, p := range page.Results {
			assert.Equal(t, cat.ID, p.Category.ID)
		}
	}
}

func TestListPosts_SearchAndOrdering(t *testing.T) {
	c, _ := newTestClient(t)

	page, err := c.ListPosts(context.Background(), PostFilter{Search: "typography"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Readable typography", page.Results[0].Title)

	page, err = c.ListPosts(context.Background(), PostFilter{Ordering: "-published_at"})
	require.NoError(t, err)
	require.Len(t, page.Results, 3)
	assert.Equal(t, "Readable typography", page.Results[0].Title)
}

func TestGetPost_NotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetPost(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Not found.", Message(err, "fallback"))
}

func TestMe_RequiresToken(t *testing.T) {
	c, f := newTestClient(t)

	_, err := c.Me(context.Background())
	assert.True(t, IsUnauthorized(err))

	me, err := c.Me(login(t, c))
	require.NoError(t, err)
	assert.Equal(t, f.Author.ID, me.ID)
}

func TestObtainToken_BadCredentials(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.ObtainToken(context.Background(), mockapi.DemoEmail, "nope")
	require.Error(t, err)
	assert.Equal(t, "No active account found with the given credentials", Message(err, "Login failed"))
}

func TestCreateComment_ValidationMessage(t *testing.T) {
	c, f := newTestClient(t)

	_, err := c.CreateComment(login(t, c), CreateCommentInput{Content: " ", PostID: f.Posts[0].ID})
	require.Error(t, err)
	assert.Equal(t, "content: this field may not be blank", Message(err, "Failed to add comment"))
}

func TestMyPosts_BareArray(t *testing.T) {
	c, _ := newTestClient(t)

	page, err := c.MyPosts(login(t, c))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
}

func TestCreateAndUpdatePost(t *testing.T) {
	c, f := newTestClient(t)
	ctx := login(t, c)

	post, err := c.CreatePost(ctx, CreatePostInput{Title: "Draft", Content: "<p>x</p>", CategoryID: f.Design.ID, Status: domain.StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, post.Status)

	published := domain.StatusPublished
	post, err = c.UpdatePost(ctx, post.ID, PostPatch{Status: &published})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, post.Status)
	assert.NotNil(t, post.PublishedAt)
}

func TestMessage_FallbackForTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTimeout(5*time.Millisecond))
	require.NoError(t, err)

	_, err = c.ListCategories(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to load categories", Message(err, "Failed to load categories"))
}

type recordingObserver struct {
	routes   []string
	statuses []int
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.routes = append(o.routes, method+" "+route)
	o.statuses = append(o.statuses, status)
}

func TestObserver_SeesRouteTemplates(t *testing.T) {
	store := mockapi.NewStore()
	_, err := mockapi.Seed(store)
	require.NoError(t, err)
	srv := httptest.NewServer(mockapi.NewServer(store))
	defer srv.Close()

	obs := &recordingObserver{}
	c, err := New(srv.URL+"/api", WithObserver(obs))
	require.NoError(t, err)

	_, _ = c.GetPost(context.Background(), "missing")
	assert.Equal(t, []string{"GET /posts/{id}/"}, obs.routes)
	assert.Equal(t, []int{http.StatusNotFound}, obs.statuses)
}
