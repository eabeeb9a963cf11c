// Package config defines release settings used by the package and publish
// commands and provides helpers to load, validate and save them in YAML format.
//
// Settings are layered over Default, which carries the bucket, download URLs,
// update-server root and signer paths the release has always used. Update-server
// credentials never live in the file; LoadCredentials reads them from the environment.
package config
