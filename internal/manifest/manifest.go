// Package manifest reads the declarative tree of items to archive and drives the archive
// driver through it.
//
// A manifest node is either a leaf listing items by kind and reference, or a branch of
// named subdirectories:
//
//	branch:
//	  reading:
//	    leaf:
//	      question:
//	        "19550225": {answer: {comment: true}, comment: true}
//	      user:
//	        alice: {id: 0123456789abcdef0123456789abcdef, answer: true}
//
// Every entry's option maps relation names to nested options; true is shorthand for an
// empty option. User entries are keyed by url token and carry the user's id.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Option selects the listings to follow below an entry.
type Option struct {
	// ID is the user id of user entries.
	ID        string
	Relations map[string]*Option
}

// Empty reports whether the option follows no listing.
func (o *Option) Empty() bool {
	return o == nil || len(o.Relations) == 0
}

// RelationNames returns the followed relations, sorted.
func (o *Option) RelationNames() []string {
	if o == nil {
		return nil
	}
	names := make([]string, 0, len(o.Relations))
	for name := range o.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Option) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := n.Decode(&b); err != nil || !b {
			return fmt.Errorf("line %d: option must be true or a mapping, got %q", n.Line, n.Value)
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Value == "id" {
				if err := v.Decode(&o.ID); err != nil {
					return fmt.Errorf("line %d: id: %w", v.Line, err)
				}
				continue
			}
			child := &Option{}
			if err := v.Decode(child); err != nil {
				return fmt.Errorf("%s: %w", k.Value, err)
			}
			if o.Relations == nil {
				o.Relations = make(map[string]*Option)
			}
			o.Relations[k.Value] = child
		}
		return nil
	default:
		return fmt.Errorf("line %d: option must be true or a mapping", n.Line)
	}
}

func (o *Option) MarshalYAML() (interface{}, error) {
	m := make(map[string]interface{}, len(o.Relations)+1)
	if o.ID != "" {
		m["id"] = o.ID
	}
	for name, child := range o.Relations {
		if child == nil {
			child = &Option{}
		}
		m[name] = child
	}
	return m, nil
}

// Leaf lists entries as kind -> reference -> option.
type Leaf map[string]map[string]*Option

// Node is one level of the manifest tree. Exactly one of Leaf and Branch is set.
type Node struct {
	Leaf   Leaf             `yaml:"leaf,omitempty"`
	Branch map[string]*Node `yaml:"branch,omitempty"`
}

var ErrInvalid = errors.New("invalid manifest")

// Validate checks that every node is either a leaf or a branch and that user entries
// carry an id.
func (n *Node) Validate() error {
	return n.validate("")
}

func (n *Node) validate(at string) error {
	if n == nil {
		return fmt.Errorf("%w: empty node at %q", ErrInvalid, at)
	}
	switch {
	case n.Leaf != nil && n.Branch != nil:
		return fmt.Errorf("%w: node at %q is both leaf and branch", ErrInvalid, at)
	case n.Leaf == nil && n.Branch == nil:
		return fmt.Errorf("%w: node at %q is neither leaf nor branch", ErrInvalid, at)
	}
	for kind, entries := range n.Leaf {
		for ref, opt := range entries {
			if kind == userKind && (opt == nil || opt.ID == "") {
				return fmt.Errorf("%w: user %q at %q has no id", ErrInvalid, ref, at)
			}
		}
	}
	for name, child := range n.Branch {
		if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
			return fmt.Errorf("%w: bad directory name %q at %q", ErrInvalid, name, at)
		}
		if err := child.validate(filepath.Join(at, name)); err != nil {
			return err
		}
	}
	return nil
}

// normalize replaces options written as null with empty ones.
func (n *Node) normalize() {
	for _, entries := range n.Leaf {
		for ref, opt := range entries {
			if opt == nil {
				entries[ref] = &Option{}
				continue
			}
			opt.normalize()
		}
	}
	for _, child := range n.Branch {
		child.normalize()
	}
}

func (o *Option) normalize() {
	for name, child := range o.Relations {
		if child == nil {
			o.Relations[name] = &Option{}
			continue
		}
		child.normalize()
	}
}

// Parse decodes and validates a manifest.
func Parse(r io.Reader) (*Node, error) {
	var n Node
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	n.normalize()
	return &n, nil
}

// Load reads the manifest at path.
func Load(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	n, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Write encodes n in canonical form: sorted keys, two space indent, empty options as {}.
func (n *Node) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return enc.Close()
}

// Format rewrites the manifest at path in canonical form.
func Format(path string) error {
	n, err := Load(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := n.Write(&buf); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if fi, err := os.Stat(path); err == nil {
		os.Chmod(tmp.Name(), fi.Mode().Perm())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
