// Package integration runs the release pipeline against the real git, cp,
// zip and unzip tools. Tests skip when a tool is not installed.
package integration
