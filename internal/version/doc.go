// Package version exposes build metadata of the xpi-release binary.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. This is unrelated to the extension version being released,
// which is derived by the versioner service.
package version
