// Package common holds helpers shared by the package and publish services.
//
// It detects the current system actor (hostname/username) and guards the
// working directory with a release lock, so two releases never race on the
// scratch directory or the latest.* copies.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
