// Package manifest renders the documents shipped with a release: the install
// manifest packed into the archive, the update manifest polled by installed
// clients and the HTML landing page linking to the newest archive.
package manifest
