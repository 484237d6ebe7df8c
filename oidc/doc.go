// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is a relying party for a Keycloak realm, using the OIDC
authorization code flow with PKCE as a public client.

Primary types provided by the package

* Config: the client's configuration (client id, optional secret, issuer,
redirect URLs, additional scopes, provider CA).

* Provider: generates auth URLs, exchanges codes for tokens, refreshes tokens,
verifies id_tokens and builds end session URLs.  Discovery happens lazily on
first use and is retried until it succeeds.

* Request: one authentication attempt (state, nonce and PKCE verifier) which
survives the round trip through the provider.  RequestCache holds the
in-flight Requests of one browser session.

* Token: the id_token, access_token and refresh_token of an end-user.

* Handle: one browser mount's connection to the provider.  Init performs a
silent (prompt=none) session check; a Handle created WithCallback completes
the attempt the callback belongs to.

* TestProvider: a local realm for tests.
*/
package oidc
