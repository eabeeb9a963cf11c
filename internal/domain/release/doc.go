// Package release holds the release domain model: channels, folder naming,
// artifact naming and beta version decoration.
package release
