package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-affiliates/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-affiliates/pkg/auth"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

// Auth requires a valid bearer token and stores its Caller on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := withCaller(r.Context(), Caller{Subject: claims.Subject, Role: claims.Role})
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, claims.Subject), claims.Role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token. A lone
// scheme word carries no token.
func bearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	switch len(fields) {
	case 1:
		if strings.EqualFold(fields[0], "bearer") {
			return "", false
		}
		return fields[0], true
	case 2:
		if strings.EqualFold(fields[0], "bearer") {
			return fields[1], true
		}
	}
	return "", false
}
