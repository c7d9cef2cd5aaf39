package api

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

const authRealm = `Basic realm="simstream"`

// withAuth marks an operation as requiring basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

func (s *Server) authEnabled() bool {
	return s.options.AuthUsername != "" && s.options.AuthPassword != ""
}

// basicAuthMiddleware rejects requests to secured operations that lack
// valid credentials. Operations with an empty Security list pass through.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		status, msg := checkCredentials(ctx.Header("Authorization"), ctx.Query("auth"), username, password)
		if status != http.StatusOK {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, status, msg)
			return
		}
		next(ctx)
	}
}

// checkCredentials validates a "Basic" Authorization header or, for
// clients that cannot set headers (EventSource, WebSocket), a base64
// "auth" query parameter. The header wins when both are present.
func checkCredentials(authHeader, queryAuth, username, password string) (int, string) {
	encoded := queryAuth
	if authHeader != "" {
		scheme, rest, _ := strings.Cut(authHeader, " ")
		if !strings.EqualFold(scheme, "Basic") {
			return http.StatusUnauthorized, "Invalid authentication type"
		}
		encoded = rest
	}
	if encoded == "" {
		return http.StatusUnauthorized, "Authentication required"
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return http.StatusUnauthorized, "Invalid credentials format"
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return http.StatusUnauthorized, "Invalid credentials format"
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
	if !userOK || !passOK {
		return http.StatusUnauthorized, "Invalid credentials"
	}
	return http.StatusOK, ""
}
