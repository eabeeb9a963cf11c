// Package shell runs the external tools the release is built from
// (git, cp, zip, unzip, the signer and the aws CLI).
//
// Each failure is reported as a distinct error: the tool is missing
// (ErrToolNotFound), it exited non-zero (*ExitError) or it ran past the
// configured limit (ErrTimeout).
package shell
