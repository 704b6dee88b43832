package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
)

// AuthHeader is the custom header carrying "<scheme> <token>"; only the
// second space-separated segment is used as the token.
const AuthHeader = "X-Auth-Token-Header"

type contextKey int

const claimsContextKey contextKey = iota

// Authenticate is the gate itself: it inspects the request and returns the
// verified claims, ErrTokenMissing when no token was presented, or a
// verification error. It has no side effects.
func (a *App) Authenticate(r *http.Request) (*IdentityClaims, error) {
	header := r.Header.Get(AuthHeader)
	if header == "" {
		return nil, ErrTokenMissing
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) < 2 || parts[1] == "" {
		return nil, ErrTokenMissing
	}
	return a.Tokens.Verify(KeyAccess, parts[1])
}

// RequireAuth composes the gate in front of a handler. Missing token fails
// with 401 before the handler runs; a bad token fails with 403.
func (a *App) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		if err != nil {
			if errors.Is(err, ErrTokenMissing) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
				return
			}
			writeError(w, http.StatusForbidden, CodeTokenInvalid, "Token Invalid")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the identity claims the gate attached, or nil on an
// unprotected route.
func claimsFrom(ctx context.Context) *IdentityClaims {
	claims, _ := ctx.Value(claimsContextKey).(*IdentityClaims)
	return claims
}

// CORS middleware allows the single configured client origin
func (a *App) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (a.ClientOrigin == "*" || origin == a.ClientOrigin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+AuthHeader)
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Printf("[%s] %s %s %d %v", r.Method, r.URL.Path, r.RemoteAddr, wrapped.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}
