// Package authcore is a consolidated authentication and session-security
// service: password policy enforcement, argon2id credential storage,
// brute-force lockout with coarse rate limiting, JWT access tokens with
// rotating opaque refresh tokens, and Redis-backed session management.
//
// Service methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface: [Service], [Builder], [Config], the
// [CredentialStore] integration interface, and value types. Durable user
// persistence belongs to the host application behind CredentialStore;
// authcore owns every rule applied to those records but never the storage
// engine. Sessions, rate windows, and one-time tokens live in Redis.
// Orchestration internals (guard, limiter, token stores, audit dispatch)
// live under internal/ and are never exported.
//
// # Failure semantics
//
// Expected outcomes of hostile or mistaken input (wrong password, replayed
// refresh token, policy violation) surface as sentinel errors matched with
// errors.Is. Infrastructure failures wrap [ErrBackendUnavailable] and must
// be mapped to a generic 5xx; their details never reach clients.
package authcore
