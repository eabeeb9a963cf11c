// Package versioner derives the release version from the source-control tag
// history and the version recorded in the package JSON file.
package versioner
