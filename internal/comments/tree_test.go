package comments

import (
	"testing"
	"time"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func comment(id string, parent string, minute int) *domain.Comment {
	c := &domain.Comment{ID: domain.ID(id), Content: "c " + id, CreatedAt: t0.Add(time.Duration(minute) * time.Minute)}
	if parent != "" {
		p := domain.ID(parent)
		c.ParentID = &p
	}
	return c
}

func ids(roots []*domain.Comment) []string {
	var out []string
	for n := range Walk(roots) {
		out = append(out, string(n.Comment.ID))
	}
	return out
}

func TestBuildTree_FromFlatList(t *testing.T) {
	flat := []*domain.Comment{
		comment("r2", "", 5),
		comment("a1", "r1", 2),
		comment("r1", "", 1),
		comment("a2", "a1", 3),
		comment("b1", "r1", 2),
	}

	roots := BuildTree(flat)

	require.Len(t, roots, 2)
	assert.Equal(t, []string{"r1", "a1", "a2", "b1", "r2"}, ids(roots))
	assert.Nil(t, flat[2].Replies, "input must not be modified")
}

func TestBuildTree_FromNestedInput(t *testing.T) {
	root := comment("r1", "", 1)
	reply := comment("a1", "", 2) // nested reply without parent id
	reply.Replies = []*domain.Comment{comment("a2", "a1", 3)}
	root.Replies = []*domain.Comment{reply}

	roots := BuildTree([]*domain.Comment{root})

	require.Len(t, roots, 1)
	require.Len(t, roots[0].Replies, 1)
	assert.Equal(t, domain.ID("r1"), *roots[0].Replies[0].ParentID)
	assert.Equal(t, []string{"r1", "a1", "a2"}, ids(roots))
}

func TestBuildTree_DeduplicatesMixedShapes(t *testing.T) {
	root := comment("r1", "", 1)
	root.Replies = []*domain.Comment{comment("a1", "r1", 2)}
	// One-level nesting plus the same reply repeated at the top level.
	roots := BuildTree([]*domain.Comment{root, comment("a1", "r1", 2)})

	assert.Equal(t, []string{"r1", "a1"}, ids(roots))
}

func TestBuildTree_IntegerKeysTieBreakNumerically(t *testing.T) {
	roots := BuildTree([]*domain.Comment{comment("10", "", 1), comment("9", "", 1), comment("100", "9", 2)})

	assert.Equal(t, []string{"9", "100", "10"}, ids(roots))
}

func TestBuildTree_OrphansBecomeRoots(t *testing.T) {
	roots := BuildTree([]*domain.Comment{comment("x", "missing", 1), comment("r1", "", 2)})

	require.Len(t, roots, 2)
	assert.Equal(t, domain.ID("x"), roots[0].ID)
}

func TestBuildTree_CycleTerminates(t *testing.T) {
	roots := BuildTree([]*domain.Comment{comment("a", "b", 1), comment("b", "a", 2)})

	assert.ElementsMatch(t, []string{"a", "b"}, ids(roots))
}

func TestWalk_DepthAndReplyGate(t *testing.T) {
	flat := []*domain.Comment{
		comment("d0", "", 1),
		comment("d1", "d0", 2),
		comment("d2", "d1", 3),
		comment("d3", "d2", 4),
		comment("d4", "d3", 5),
	}
	byID := map[domain.ID]*domain.Comment{}
	for _, c := range flat {
		byID[c.ID] = c
	}

	depth := map[domain.ID]int{}
	for n := range Walk(BuildTree(flat)) {
		depth[n.Comment.ID] = n.Depth
		if p := n.Comment.ParentID; p != nil {
			assert.Equal(t, depth[*p]+1, n.Depth, "child renders one level below its parent")
		} else {
			assert.Zero(t, n.Depth)
		}
		assert.Equal(t, n.Depth < MaxDepth, n.CanReply)
	}
	assert.Len(t, depth, len(byID), "deep comments are still rendered")
}

func TestWalk_IsRestartableAndStoppable(t *testing.T) {
	roots := BuildTree([]*domain.Comment{comment("r1", "", 1), comment("a1", "r1", 2), comment("r2", "", 3)})

	assert.Equal(t, ids(roots), ids(roots))
	assert.Equal(t, 3, Count(roots))

	var first []string
	for n := range Walk(roots) {
		first = append(first, string(n.Comment.ID))
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"r1", "a1"}, first)
}

func TestCount_Empty(t *testing.T) {
	assert.Zero(t, Count(nil))
	assert.Empty(t, BuildTree(nil))
}
