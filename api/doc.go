// Package api is the REST client for the calculation and admin service.
//
// All calls are token-authenticated. Non-2xx responses become [*StatusError]
// carrying the service message and, for permission failures, any refreshed role
// list the service returned. The client performs no authorization of its own.
package api
