package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"tabtask/internal/logging"
	"tabtask/internal/repo"
)

const devTokenTTL = 24 * time.Hour

type AuthConfig struct {
	JWTSecret     string
	AllowDevLogin bool
	Logger        logging.Logger
}

// Principal is the authenticated owner of a request. Every tab and task an
// owner touches is scoped to OwnerID.
type Principal struct {
	OwnerID string
	Source  string
}

type ctxKey int

const principalKey ctxKey = 0

func (c AuthConfig) logger() logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Nop()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func ownerFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.OwnerID != "" {
		return p.OwnerID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// SignToken mints an HS256 token whose subject is owner.
func SignToken(secret, owner string, ttl time.Duration) (string, error) {
	switch {
	case strings.TrimSpace(secret) == "":
		return "", errors.New("sign token: no jwt secret")
	case strings.TrimSpace(owner) == "":
		return "", errors.New("sign token: owner is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  owner,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var errNoCredentials = errors.New("no credentials")

// authenticator turns request headers into a Principal. A bearer token takes
// precedence over an api key when both are sent.
type authenticator struct {
	secret string
	keys   repo.Repo
}

func (a authenticator) principal(req *http.Request) (Principal, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		fields := strings.Fields(authz)
		if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
			return Principal{}, errors.New("malformed authorization header")
		}
		return a.token(fields[1])
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		return a.apiKey(req.Context(), key)
	}
	return Principal{}, errNoCredentials
}

func (a authenticator) token(raw string) (Principal, error) {
	if strings.TrimSpace(a.secret) == "" {
		return Principal{}, errors.New("token auth disabled: no jwt secret")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return []byte(a.secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return Principal{OwnerID: claims.Subject, Source: "jwt"}, nil
}

func (a authenticator) apiKey(ctx context.Context, plain string) (Principal, error) {
	key, err := a.keys.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		return Principal{}, err
	}
	if key.OwnerID == "" {
		return Principal{}, errors.New("api key has no owner")
	}
	return Principal{OwnerID: key.OwnerID, Source: "api_key"}, nil
}

// newAuthMiddleware guards everything under basePath except the public
// routes. Other paths pass through untouched.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	auth := authenticator{secret: cfg.JWTSecret, keys: r}
	log := cfg.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			_, open := public[req.URL.Path]
			if open || !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			p, err := auth.principal(req)
			switch {
			case errors.Is(err, errNoCredentials):
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			case err != nil:
				log.Debug(req.Context(), "rejected credentials", "path", req.URL.Path, "err", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
