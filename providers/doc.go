// Package providers holds the generic OAuth2 authorization-code client shared
// by the helpdesk platforms. Platform subpackages embed OAuth2Platform and add
// their ticket listing call.
package providers
