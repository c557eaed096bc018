package comment

// Tree is a comment with its replies.
type Tree struct {
	Comment  *Comment
	Children []*Tree
}

type node struct {
	comment  *Comment
	children []int
	placed   bool
}

// BuildTree arranges comments into trees rooted at the comments without a parent.
// Siblings keep their order in comments. A comment whose parent chain never reaches a
// root, such as one on a cycle or below a missing ancestor, is left out. Each comment
// appears at most once.
func BuildTree(comments []*Comment) []*Tree {
	nodes := make([]node, len(comments))
	index := make(map[uint64]int, len(comments))
	for i, c := range comments {
		nodes[i].comment = c
		if _, dup := index[c.Info.ID]; !dup {
			index[c.Info.ID] = i
		}
	}

	var roots []int
	for i, c := range comments {
		if index[c.Info.ID] != i {
			continue
		}
		if c.Info.ParentID == nil {
			roots = append(roots, i)
			continue
		}
		if p, ok := index[*c.Info.ParentID]; ok {
			nodes[p].children = append(nodes[p].children, i)
		}
	}

	var build func(i int) *Tree
	build = func(i int) *Tree {
		nodes[i].placed = true
		t := &Tree{Comment: nodes[i].comment}
		for _, c := range nodes[i].children {
			if nodes[c].placed {
				continue
			}
			t.Children = append(t.Children, build(c))
		}
		return t
	}

	out := make([]*Tree, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out
}

// Flatten lists the comments of trees in pre-order.
func Flatten(trees []*Tree) []*Comment {
	var out []*Comment
	var walk func(t *Tree)
	walk = func(t *Tree) {
		out = append(out, t.Comment)
		for _, c := range t.Children {
			walk(c)
		}
	}
	for _, t := range trees {
		walk(t)
	}
	return out
}

// Count returns the number of comments in trees.
func Count(trees []*Tree) int {
	n := 0
	for _, t := range trees {
		n += 1 + Count(t.Children)
	}
	return n
}
