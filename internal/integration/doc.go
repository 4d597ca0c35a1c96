// Package integration holds end-to-end tests that drive the engine
// through its outer surfaces: the HTTP API and the directory watcher.
package integration
