package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EntryKind discriminates manifest entries.
type EntryKind int

const (
	KindDirectory EntryKind = iota
	KindFile
)

func (k EntryKind) String() string {
	if k == KindFile {
		return "file"
	}
	return "directory"
}

// Entry is one mountable node: either Directory or File.
type Entry interface {
	Kind() EntryKind
	isEntry()
}

// Directory is a directory entry.
type Directory struct{}

// Kind implements Entry.
func (Directory) Kind() EntryKind { return KindDirectory }
func (Directory) isEntry()        {}

// File is a file entry with its full contents.
type File struct {
	Contents []byte
}

// Kind implements Entry.
func (File) Kind() EntryKind { return KindFile }
func (File) isEntry()        {}

// Manifest maps sanitized, slash-separated virtual paths to entries.
type Manifest map[string]Entry

// FileCount returns the number of file entries.
func (m Manifest) FileCount() int {
	n := 0
	for _, e := range m {
		if e.Kind() == KindFile {
			n++
		}
	}
	return n
}

// Keys returns all keys sorted lexically.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Depth returns the number of separators in key; root-level keys have depth 0.
func Depth(key string) int {
	return strings.Count(key, "/")
}

// IsRoot reports whether key names a root-level entry.
func IsRoot(key string) bool {
	return Depth(key) == 0
}

type wireDirectory struct {
	Directory struct{} `json:"directory"`
}

type wireFile struct {
	File struct {
		Contents string `json:"contents"`
	} `json:"file"`
}

// MarshalJSON encodes the manifest in the flat wire form
// {"src": {"directory": {}}, "src/index.js": {"file": {"contents": "x"}}}.
func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, e := range m {
		switch v := e.(type) {
		case Directory:
			out[k] = wireDirectory{}
		case File:
			var w wireFile
			w.File.Contents = string(v.Contents)
			out[k] = w
		default:
			return nil, fmt.Errorf("manifest entry %q has unsupported type %T", k, e)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flat wire form produced by MarshalJSON.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]struct {
		Directory *struct{} `json:"directory"`
		File      *struct {
			Contents string `json:"contents"`
		} `json:"file"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Manifest, len(raw))
	for k, v := range raw {
		switch {
		case v.File != nil && v.Directory != nil:
			return fmt.Errorf("manifest entry %q is both a file and a directory", k)
		case v.File != nil:
			out[k] = File{Contents: []byte(v.File.Contents)}
		case v.Directory != nil:
			out[k] = Directory{}
		default:
			return fmt.Errorf("manifest entry %q is neither a file nor a directory", k)
		}
	}
	*m = out
	return nil
}
