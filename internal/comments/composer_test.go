package comments

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/mockapi"
	"github.com/UkralStul/blog-web/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const threadRoute = "/api/comments/for_post/"

type countingRecorder struct {
	mu   sync.Mutex
	seen map[string]int
}

func (r *countingRecorder) CommentMutation(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[string]int{}
	}
	r.seen[kind+"/"+outcome]++
}

type fixture struct {
	composer *Composer
	server   *mockapi.Server
	seed     *mockapi.Fixture
	token    string
	rec      *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	store := mockapi.NewStore()
	seed, err := mockapi.Seed(store)
	require.NoError(t, err)

	server := mockapi.NewServer(store)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL + "/api")
	require.NoError(t, err)
	tokens, err := client.ObtainToken(context.Background(), mockapi.DemoEmail, mockapi.DemoPassword)
	require.NoError(t, err)

	q := query.New(query.Options{StaleTime: time.Hour}, zap.NewNop(), nil)
	rec := &countingRecorder{}
	return &fixture{
		composer: NewComposer(client, q, zap.NewNop(), rec),
		server:   server,
		seed:     seed,
		token:    tokens.Access,
		rec:      rec,
	}
}

func find(roots []*domain.Comment, id domain.ID) (Node, bool) {
	for n := range Walk(roots) {
		if n.Comment.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func TestComposer_ThreadIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := f.seed.Posts[0].ID

	first, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)
	second, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)

	assert.Equal(t, 4, Count(first))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.server.Calls("GET", threadRoute))

	deep, ok := find(first, f.seed.DeepID)
	require.True(t, ok)
	assert.Equal(t, 2, deep.Depth)
	assert.True(t, deep.CanReply)
}

func TestComposer_SubmitComment_RefetchesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := f.seed.Posts[0].ID

	_, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)

	tree, err := f.composer.SubmitComment(ctx, f.token, "  Nice post  ", postID)
	require.NoError(t, err)

	assert.Equal(t, 2, f.server.Calls("GET", threadRoute))
	assert.Equal(t, 5, Count(tree))
	last := tree[len(tree)-1]
	assert.Equal(t, "Nice post", last.Content)
	assert.True(t, last.IsRoot())

	// Later readers see the refreshed thread without another request.
	again, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, 5, Count(again))
	assert.Equal(t, 2, f.server.Calls("GET", threadRoute))
}

func TestComposer_SubmitReply_UsesBackendReplyCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := f.seed.Posts[0].ID

	before, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)
	root, ok := find(before, f.seed.RootID)
	require.True(t, ok)
	require.Equal(t, 1, root.Comment.ReplyCount)

	tree, err := f.composer.SubmitReply(ctx, f.token, "Me too", postID, f.seed.RootID, root.Depth)
	require.NoError(t, err)
	assert.Equal(t, 2, f.server.Calls("GET", threadRoute))

	root, ok = find(tree, f.seed.RootID)
	require.True(t, ok)
	assert.Equal(t, 2, root.Comment.ReplyCount)
	require.Len(t, root.Comment.Replies, 2)
	assert.Equal(t, "Me too", root.Comment.Replies[1].Content)

	assert.Equal(t, 1, f.rec.seen["reply/ok"])
}

func TestComposer_ValidationSendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := f.seed.Posts[0].ID

	_, err := f.composer.SubmitComment(ctx, f.token, " \n\t ", postID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = f.composer.SubmitReply(ctx, f.token, "deep", postID, f.seed.DeepID, MaxDepth)
	assert.ErrorIs(t, err, ErrMaxDepth)

	assert.Zero(t, f.server.Calls("POST", "/api/comments/"))
	assert.Zero(t, f.server.Calls("GET", threadRoute))
	assert.Equal(t, 1, f.rec.seen["comment/invalid"])
	assert.Equal(t, 1, f.rec.seen["reply/invalid"])
}

func TestComposer_FailedSubmitKeepsCachedThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := f.seed.Posts[0].ID

	before, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)

	_, err = f.composer.SubmitComment(ctx, "not-a-token", "hello", postID)
	require.Error(t, err)
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, api.IsUnauthorized(err))

	after, err := f.composer.Thread(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.server.Calls("GET", threadRoute))
	assert.Equal(t, 1, f.rec.seen["comment/error"])
}

func TestComposer_Like(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := f.seed.Posts[0].ID

	tree, err := f.composer.Like(ctx, f.token, postID, f.seed.ReplyID)
	require.NoError(t, err)

	n, ok := find(tree, f.seed.ReplyID)
	require.True(t, ok)
	assert.Equal(t, 1, n.Comment.LikesCount)
}
