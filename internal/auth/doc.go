// Package auth provides authentication and authorization for kisanmitra-gateway.
//
// # Credentials
//
// Passwords are hashed with bcrypt through Hasher. Verify returns false for a
// wrong password and ErrCredentialFormat only when the stored digest is corrupt.
//
// # Tokens
//
// TokenService issues HMAC-signed JWTs carrying:
//
//   - sub: the principal id
//   - phone: the principal's phone number
//   - role: farmer, expert or admin
//   - exp: absolute expiry, 30 minutes after issue unless configured
//
// Tokens are stateless. There is no revocation list; a token is valid until
// its signature fails or it expires. ErrExpiredToken is returned only for a
// correctly signed token past its expiry so callers can tell it apart from
// ErrInvalidToken.
//
// # Authorization Gate
//
// Gate.Resolve verifies a token and performs exactly one principal lookup.
// Resolved principals are not cached, so deactivation takes effect on the
// next request. Gate.Middleware wraps protected HTTP routes and RequireAdmin
// further restricts a route to admins:
//
//	mux.Handle("/users/me", gate.Middleware()(handler))
package auth
