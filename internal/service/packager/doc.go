// Package packager builds the distributable .xpi archive.
//
// It renders the install manifest into the extension source tree, copies the
// tree into a scratch directory, strips channel-specific files, zips the
// result as <name>.<version>.xpi, optionally signs it, and refreshes the local
// latest.xpi copy.
package packager
