// Package auth resolves bearer tokens to caller identities.
//
// Tokens look like bos_<base64url(32 random bytes)>. Only their SHA256 hash
// is stored in api_sessions, so a leaked table cannot be replayed.
//
//	sessions := auth.NewSessionStore(db)
//	token, expiresAt, err := sessions.Issue(ctx, userID, 30*24*time.Hour)
//	identity, err := sessions.Authenticate(ctx, token)
//
// An Identity carries the user, tenant and role ids. Tenant and role are zero
// for users who have not joined a tenant yet; the tenancy guard rejects those
// on tenant-scoped routes.
package auth
