package manifest

// Merge adds the relations of other to o. A relation followed by either side is
// followed by the result. The first non-empty user id wins.
func (o *Option) Merge(other *Option) {
	if other == nil {
		return
	}
	if o.ID == "" {
		o.ID = other.ID
	}
	for name, child := range other.Relations {
		if o.Relations == nil {
			o.Relations = make(map[string]*Option)
		}
		mine, ok := o.Relations[name]
		if !ok || mine == nil {
			mine = &Option{}
			o.Relations[name] = mine
		}
		mine.Merge(child)
	}
}

// Merge adds the entries of other to l, merging the options of entries both list.
func (l Leaf) Merge(other Leaf) {
	for kind, entries := range other {
		mine, ok := l[kind]
		if !ok {
			mine = make(map[string]*Option, len(entries))
			l[kind] = mine
		}
		for ref, opt := range entries {
			cur, ok := mine[ref]
			if !ok || cur == nil {
				cur = &Option{}
				mine[ref] = cur
			}
			cur.Merge(opt)
		}
	}
}

// MergedLeaf merges every leaf below n into one, so that each entry is processed once
// however many directories list it.
func (n *Node) MergedLeaf() Leaf {
	out := make(Leaf)
	n.mergeInto(out)
	return out
}

func (n *Node) mergeInto(out Leaf) {
	if n == nil {
		return
	}
	out.Merge(n.Leaf)
	for _, child := range n.Branch {
		child.mergeInto(out)
	}
}
