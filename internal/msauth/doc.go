// Package msauth implements multi-account authentication against Microsoft
// Entra ID using the OAuth 2.0 device authorization grant (RFC 8628).
//
// The package is organized around four collaborating components:
//
//   - CredentialStore: durable, atomic persistence of the full
//     identity-to-token mapping as a single JSON snapshot on disk
//   - Authenticator: drives the two-phase device-code flow; Start returns a
//     user code plus an opaque flow handle, Complete polls the token endpoint
//     until the human finishes (or the flow is denied or expires)
//   - Registry: the insertion-ordered set of signed-in identities; the first
//     identity that ever authenticated is the implicit default account
//   - Broker: hands out valid access tokens, silently refreshing through the
//     cached refresh token; concurrent refreshes for the same identity are
//     collapsed into a single network call
//
// Manager composes the four into the facade the rest of the application uses.
// The authenticator itself never persists anything; completed logins are
// recorded through the registry so the authenticator stays stateless and
// testable against a mocked provider.
package msauth
