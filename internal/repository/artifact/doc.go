// Package artifact manages release files inside the working directory:
// checksums, atomic promotion of the latest archive and cleanup of scratch state.
package artifact
