// Package repo defines the in-memory model of a fetched repository tree.
package repo

import (
	"errors"
	"fmt"
)

// Kind discriminates files from directories.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// ErrStop can be returned from a WalkFunc to end the walk early without error.
var ErrStop = errors.New("stop walk")

// RepoNode is one entry of a repository tree.
//
// Content is only meaningful for files and is nil when the content fetch
// failed. Children is only meaningful for directories and is empty when the
// directory has no entries or its listing failed.
type RepoNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     Kind        `json:"type"`
	Content  *string     `json:"content,omitempty"`
	Children []*RepoNode `json:"children,omitempty"`
}

// NewFile returns a file node with the given content.
func NewFile(name, path, content string) *RepoNode {
	return &RepoNode{Name: name, Path: path, Kind: KindFile, Content: &content}
}

// NewDir returns a directory node holding children.
func NewDir(name, path string, children ...*RepoNode) *RepoNode {
	if children == nil {
		children = []*RepoNode{}
	}
	return &RepoNode{Name: name, Path: path, Kind: KindDir, Children: children}
}

// IsDir reports whether n is a directory.
func (n *RepoNode) IsDir() bool {
	return n.Kind == KindDir
}

// WalkFunc is called for every node with its depth below the walk root.
type WalkFunc func(n *RepoNode, depth int) error

// Walk visits nodes depth-first, parents before children, in listing order.
func Walk(nodes []*RepoNode, fn WalkFunc) error {
	err := walk(nodes, 0, fn)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func walk(nodes []*RepoNode, depth int, fn WalkFunc) error {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := fn(n, depth); err != nil {
			return err
		}
		if n.IsDir() {
			if err := walk(n.Children, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Find returns the node at path, or nil.
func Find(nodes []*RepoNode, path string) *RepoNode {
	var found *RepoNode
	_ = Walk(nodes, func(n *RepoNode, _ int) error {
		if n.Path == path {
			found = n
			return ErrStop
		}
		return nil
	})
	return found
}

// SetContent replaces the content of the file at path.
func SetContent(nodes []*RepoNode, path, content string) error {
	n := Find(nodes, path)
	if n == nil {
		return fmt.Errorf("no such file: %s", path)
	}
	if n.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	n.Content = &content
	return nil
}

// Count returns the number of files and directories in the tree.
func Count(nodes []*RepoNode) (files, dirs int) {
	_ = Walk(nodes, func(n *RepoNode, _ int) error {
		if n.IsDir() {
			dirs++
		} else {
			files++
		}
		return nil
	})
	return files, dirs
}

// Validate checks the structural rules of a tree: every node is a file or a
// directory with a name, files carry no children, directories carry no
// content, and paths are unique.
func Validate(nodes []*RepoNode) error {
	seen := make(map[string]bool)
	return Walk(nodes, func(n *RepoNode, _ int) error {
		if n.Name == "" {
			return fmt.Errorf("node at %q has an empty name", n.Path)
		}
		switch n.Kind {
		case KindFile:
			if len(n.Children) > 0 {
				return fmt.Errorf("file %q has children", n.Path)
			}
		case KindDir:
			if n.Content != nil {
				return fmt.Errorf("directory %q has content", n.Path)
			}
		default:
			return fmt.Errorf("node %q has unknown type %q", n.Path, n.Kind)
		}
		if seen[n.Path] {
			return fmt.Errorf("duplicate path %q", n.Path)
		}
		seen[n.Path] = true
		return nil
	})
}

// Clone returns a deep copy of the tree.
func Clone(nodes []*RepoNode) []*RepoNode {
	if nodes == nil {
		return nil
	}
	out := make([]*RepoNode, len(nodes))
	for i, n := range nodes {
		if n == nil {
			continue
		}
		c := &RepoNode{Name: n.Name, Path: n.Path, Kind: n.Kind}
		if n.Content != nil {
			s := *n.Content
			c.Content = &s
		}
		if n.Children != nil {
			c.Children = Clone(n.Children)
		}
		out[i] = c
	}
	return out
}
