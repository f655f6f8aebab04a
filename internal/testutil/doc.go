// Package testutil provides test fixtures and utilities.
//
// This package contains embedded fixtures and helper functions for loading
// repository trees and configurations in unit tests, plus a TestEnv that
// wires mock dependencies into app.Default.
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/sample_tree.json
//	fixtures/invalid_tree.json
//	fixtures/valid_config.toml
//	fixtures/invalid_config.toml
//
// # Loading Fixtures
//
// Helper functions load and parse fixtures into typed objects:
//
//	tree, err := testutil.SampleTree()
//	tree, err := testutil.InvalidTree()
//	cfg, err := testutil.ValidConfig(t)
//	_, err := testutil.InvalidConfig(t)
//
// # Test Environment
//
//	func TestOpen(t *testing.T) {
//	    env := testutil.NewTestEnv(t)
//	    env.AddSampleRepo()
//	    env.DevServerReady(testutil.DefaultPreviewHost)
//	    // app.Default now serves the sample repo from a mock source
//	}
package testutil
