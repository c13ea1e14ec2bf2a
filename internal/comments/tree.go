package comments

import (
	"iter"
	"sort"

	"github.com/UkralStul/blog-web/internal/domain"
)

// MaxDepth is the render depth at which reply composition stops being
// offered. Deeper comments are still rendered.
const MaxDepth = 3

// Node is one comment in render order.
type Node struct {
	Comment  *domain.Comment
	Depth    int
	CanReply bool
}

// BuildTree normalizes a backend comment collection into a tree. The input
// may be flat, pre-nested or a mix of both; every comment is re-linked by
// parent id. A comment whose parent is absent becomes a root. Siblings are
// ordered by creation time, then id. The input is not modified.
func BuildTree(in []*domain.Comment) []*domain.Comment {
	byID := make(map[domain.ID]*domain.Comment)
	var order []*domain.Comment

	var collect func(list []*domain.Comment, parent *domain.ID)
	collect = func(list []*domain.Comment, parent *domain.ID) {
		for _, c := range list {
			if c == nil {
				continue
			}
			if _, seen := byID[c.ID]; !seen {
				node := *c
				node.Replies = nil
				if node.ParentID == nil && parent != nil {
					p := *parent
					node.ParentID = &p
				}
				byID[node.ID] = &node
				order = append(order, &node)
			}
			id := c.ID
			collect(c.Replies, &id)
		}
	}
	collect(in, nil)

	var roots []*domain.Comment
	for _, c := range order {
		parent, ok := c.ParentID, false
		if parent != nil {
			_, ok = byID[*parent]
		}
		if !ok || cyclic(byID, c) {
			roots = append(roots, c)
			continue
		}
		byID[*parent].Replies = append(byID[*parent].Replies, c)
	}

	sortSiblings(roots)
	for _, c := range order {
		sortSiblings(c.Replies)
	}
	return roots
}

// cyclic reports whether following parent links from c leads back to c.
func cyclic(byID map[domain.ID]*domain.Comment, c *domain.Comment) bool {
	seen := map[domain.ID]bool{c.ID: true}
	for cur := c; cur.ParentID != nil; {
		next, ok := byID[*cur.ParentID]
		if !ok {
			return false
		}
		if seen[next.ID] {
			return next.ID == c.ID
		}
		seen[next.ID] = true
		cur = next
	}
	return false
}

func sortSiblings(list []*domain.Comment) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.Less(list[j].ID)
	})
}

// Walk yields the tree in pre-order. The sequence is lazy and may be ranged
// over any number of times.
func Walk(roots []*domain.Comment) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		walk(roots, 0, yield)
	}
}

func walk(list []*domain.Comment, depth int, yield func(Node) bool) bool {
	for _, c := range list {
		if !yield(Node{Comment: c, Depth: depth, CanReply: depth < MaxDepth}) {
			return false
		}
		if !walk(c.Replies, depth+1, yield) {
			return false
		}
	}
	return true
}

// Count returns the number of comments in the tree.
func Count(roots []*domain.Comment) int {
	n := 0
	for range Walk(roots) {
		n++
	}
	return n
}
