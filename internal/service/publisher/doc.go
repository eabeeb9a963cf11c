// Package publisher releases a signed archive.
//
// It packages with signing forced on, uploads the packed and unpacked
// archives, the update manifest, the landing page and the latest.* copies to
// the bucket folder of the channel, and registers the release with the
// update server. Uploads are not rolled back when a later step fails.
package publisher
