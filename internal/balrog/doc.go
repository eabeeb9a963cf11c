// Package balrog registers releases with the update-server admin API.
//
// A submission creates or updates a SystemAddons release whose blob points
// installed clients at the uploaded archive. Requests carry basic
// authentication and the CSRF token the API hands out.
package balrog
