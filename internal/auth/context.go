/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type claimsKey struct{}

// WithClaims attaches verified token claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims Require attached, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// ClientID names the remote client behind ctx. It is empty when the API
// runs without a signing key.
func ClientID(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.ClientID
	}
	return ""
}
