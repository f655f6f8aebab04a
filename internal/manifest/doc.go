// Package manifest converts fetched repository trees into mountable manifests.
//
// A Manifest is a flat map from sanitized virtual path to Entry, which is
// either Directory or File. Keys never begin with "/" and never contain
// \ : * ? " < > |. Every file key has all of its ancestor directories in the
// same manifest.
//
// # Conversion
//
// FromTree is pure and deterministic:
//
//	m, err := manifest.FromTree(tree)
//	if err != nil {
//	    m = manifest.Scaffold()
//	}
//
// Files under node_modules, hidden files, and package-lock.json are never
// emitted. Their directories still are.
//
// # Wire Form
//
// Manifests marshal to the flat JSON form sandbox runtimes accept:
//
//	{"src": {"directory": {}}, "src/index.js": {"file": {"contents": "x"}}}
package manifest
