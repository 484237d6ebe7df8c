// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// capssodemo is a demo web app which signs its users in with a Keycloak realm.
// On every page load it checks, without any interaction, whether the browser
// already has a session with the realm, then offers Login and Sign Up, or
// shows the claims of the end-user's access token and lets them call a
// backend API with it.
//
// Packages:
//
//   - authstate: the authentication State of a page load, and how it's
//     bootstrapped and published.
//   - oidc: the Keycloak client (discovery, PKCE, code exchange, refresh,
//     logout) and a TestProvider.
//   - claims: decoding of access token claims for display.
//   - apiclient: the authenticated backend call.
//   - web: the pages and redirect plumbing.
//   - config: configuration from the environment and .env files.
//
// See cmd/cap-sso-demo.
package capssodemo
