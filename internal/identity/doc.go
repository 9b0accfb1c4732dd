// Package identity implements accounts, credentials, and sessions for the
// player portal.
//
// It covers:
//   - Argon2id password hashing and verification
//   - TOTP two-factor enrollment and login checks, with one-time recovery codes
//   - Access/refresh JWT signing under distinct secrets
//   - Refresh sessions with retained revocation history and single-use rotation
//   - The Service orchestrating registration, login, refresh, and logout
//
// Access tokens are verified by signature and expiry alone; revoking a
// session only cuts off the refresh path. A revoked user keeps a working
// access token until it expires naturally.
package identity
