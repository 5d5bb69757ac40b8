// Package auth provides JWT bearer authentication middleware and the claims
// model used for scope checks.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog/log"

	"github.com/apiforge-io/apiforge-apps/internal/httputil"
)

type contextKey string

const claimsKey contextKey = "auth-claims"

// Claims carries the verified identity of a request.
type Claims struct {
	Subject string
	Email   string
	Scopes  []string
}

// HasScope reports whether the claims include the given scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, candidate := range c.Scopes {
		if candidate == scope {
			return true
		}
	}
	return false
}

// ContextWithClaims attaches claims to a context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims attached by JWTMiddleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// MiddlewareConfig configures JWTMiddleware.
type MiddlewareConfig struct {
	// JWKSURL is the JSON Web Key Set endpoint used to verify user tokens.
	JWKSURL string
	// InternalToken authorizes service-to-service calls with admin scope.
	InternalToken string
	// DevMode bypasses verification entirely and injects admin claims.
	DevMode bool
}

// JWTMiddleware verifies bearer tokens and attaches claims to the request
// context. Requests without a valid token receive a 401 problem response.
func JWTMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	var keySet jwk.Set
	if url := strings.TrimSpace(cfg.JWKSURL); url != "" {
		cache := jwk.NewCache(context.Background())
		if err := cache.Register(url); err != nil {
			log.Error().Err(err).Str("jwks_url", url).Msg("registering JWKS endpoint")
		} else {
			keySet = jwk.NewCachedSet(cache, url)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.DevMode {
				claims := &Claims{Subject: "dev", Scopes: []string{"admin"}}
				next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				httputil.RespondProblem(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}

			if internal := strings.TrimSpace(cfg.InternalToken); internal != "" {
				if subtle.ConstantTimeCompare([]byte(token), []byte(internal)) == 1 {
					claims := &Claims{Subject: "internal", Scopes: []string{"admin"}}
					next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
					return
				}
			}

			if keySet == nil {
				httputil.RespondProblem(w, r, http.StatusUnauthorized, "token verification is not configured")
				return
			}

			parsed, err := jwt.ParseString(token, jwt.WithKeySet(keySet), jwt.WithValidate(true))
			if err != nil {
				httputil.RespondProblem(w, r, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claimsFromToken(parsed))))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func claimsFromToken(token jwt.Token) *Claims {
	claims := &Claims{Subject: strings.TrimSpace(token.Subject())}

	if raw, ok := token.Get("email"); ok {
		if email, ok := raw.(string); ok {
			claims.Email = strings.TrimSpace(email)
		}
	}

	if raw, ok := token.Get("scope"); ok {
		if joined, ok := raw.(string); ok {
			claims.Scopes = append(claims.Scopes, strings.Fields(joined)...)
		}
	}
	if raw, ok := token.Get("scopes"); ok {
		switch typed := raw.(type) {
		case []string:
			claims.Scopes = append(claims.Scopes, typed...)
		case []any:
			for _, item := range typed {
				if scope, ok := item.(string); ok {
					claims.Scopes = append(claims.Scopes, scope)
				}
			}
		}
	}

	return claims
}
