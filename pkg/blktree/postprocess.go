package blktree

// Merge walks f depth-first and groups same-named siblings of every Struct
// into a single Merged node, replacing the first occurrence and dropping
// the rest. Groups of fewer than two members are left untouched. Merge is
// idempotent: Merge(Merge(f)) produces the same tree as Merge(f), because a
// Merged node's name never collides with a regular sibling's name twice
// over (it already absorbed every same-named member) and Merge only ever
// recurses into Struct children.
func Merge(f *Field) *Field {
	if f.Kind != NodeStruct {
		return f
	}

	for i, child := range f.Children {
		f.Children[i] = Merge(child)
	}

	type group struct {
		first   int
		members []*Field
	}

	order := make([]string, 0, len(f.Children))
	groups := make(map[string]*group, len(f.Children))
	for i, child := range f.Children {
		g, ok := groups[child.Name]
		if !ok {
			g = &group{first: i}
			groups[child.Name] = g
			order = append(order, child.Name)
		}
		g.members = append(g.members, child)
	}

	merged := make([]*Field, 0, len(order))
	for _, name := range order {
		g := groups[name]
		if len(g.members) >= 2 {
			merged = append(merged, &Field{Kind: NodeMerged, Name: name, Children: g.members})
		} else {
			merged = append(merged, g.members[0])
		}
	}

	f.Children = merged
	return f
}

// ApplyOverrides walks every Struct in f, replacing each regular sibling
// matched by an "override:"-prefixed field with that override's payload
// (renamed to the stripped target name), then discards the override
// markers. Overrides whose target does not match any regular sibling are
// discarded silently.
//
// When alreadyMerged is true, matching is by unique key (a single lookup
// per target name, appropriate for a tree that has already gone through
// Merge). When false, any regular sibling with the matching name is
// overwritten via a linear scan, without assuming uniqueness.
func ApplyOverrides(f *Field, alreadyMerged bool) *Field {
	if f.Kind != NodeStruct && f.Kind != NodeMerged {
		return f
	}

	for i, child := range f.Children {
		f.Children[i] = ApplyOverrides(child, alreadyMerged)
	}

	if f.Kind != NodeStruct {
		return f
	}

	var overrides []*Field
	var regular []*Field
	for _, child := range f.Children {
		if target, ok := IsOverride(child.Name); ok {
			replacement := *child
			replacement.Name = target
			overrides = append(overrides, &replacement)
			continue
		}
		regular = append(regular, child)
	}

	if len(overrides) == 0 {
		f.Children = regular
		return f
	}

	if alreadyMerged {
		index := make(map[string]int, len(regular))
		for i, r := range regular {
			index[r.Name] = i
		}
		for _, ov := range overrides {
			if i, ok := index[ov.Name]; ok {
				regular[i] = ov
			}
		}
	} else {
		for _, ov := range overrides {
			for i, r := range regular {
				if r.Name == ov.Name {
					regular[i] = ov
				}
			}
		}
	}

	f.Children = regular
	return f
}
