package middleware

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/digipay/backend/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalFromContext returns the principal the auth gate attached to
// the request.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(models.Principal)
	return principal, ok
}

// ContextWithPrincipal is exported for handler tests.
func ContextWithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Auth resolves bearer tokens to principals. It checks the revocation
// set before trusting an otherwise valid signature, then resolves the
// token subject in the account pool its role claim names.
type Auth struct {
	db    *sql.DB
	redis *redis.Client
}

func NewAuth(db *sql.DB, redisClient *redis.Client) *Auth {
	return &Auth{db: db, redis: redisClient}
}

// Authenticate is the gate every protected route passes through.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		// No revocation store means revoked tokens cannot be told
		// apart from live ones; refuse rather than degrade.
		if a.redis == nil {
			log.Printf("[AUTH] Revocation store unavailable")
			http.Error(w, "An internal error occurred", http.StatusInternalServerError)
			return
		}
		revoked, err := a.redis.Exists(r.Context(), fmt.Sprintf("blacklist:%s", token)).Result()
		if err != nil {
			log.Printf("[AUTH] Revocation check failed: %v", err)
			http.Error(w, "An internal error occurred", http.StatusInternalServerError)
			return
		}
		if revoked > 0 {
			http.Error(w, "Token revoked", http.StatusUnauthorized)
			return
		}

		principalID, role, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		principal, err := a.resolvePrincipal(r.Context(), principalID, role)
		if err != nil {
			if err != sql.ErrNoRows {
				log.Printf("[AUTH] Principal resolution failed for %d: %v", principalID, err)
			}
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin composes after Authenticate on admin-only routes.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}
		if !principal.IsAdmin() {
			http.Error(w, "Access denied (admin only)", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validateToken(tokenString string) (int, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", fmt.Errorf("unexpected claims type")
	}

	id, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("missing user_id claim")
	}
	role, _ := claims["role"].(string)
	return int(id), role, nil
}

// resolvePrincipal looks the token subject up in the pool its role
// claim names. User and admin ids come from independent sequences and
// collide, so the claim, minted by login from whichever pool
// authenticated, is the only safe pool selector. The password hash
// never leaves this function.
func (a *Auth) resolvePrincipal(ctx context.Context, id int, role string) (models.Principal, error) {
	if role == models.RoleAdmin {
		var admin models.AdminAccount
		err := a.db.QueryRowContext(ctx, `
			SELECT id, fullname, email, balance FROM admins WHERE id = $1`,
			id).Scan(&admin.ID, &admin.Fullname, &admin.Email, &admin.Balance)
		if err != nil {
			return models.Principal{}, err
		}
		return models.Principal{Admin: &admin}, nil
	}

	var user models.UserAccount
	err := a.db.QueryRowContext(ctx, `
		SELECT id, fullname, email, role, blocked, COALESCE(account_number, ''), balance
		FROM users WHERE id = $1`,
		id).Scan(&user.ID, &user.Fullname, &user.Email, &user.Role,
		&user.Blocked, &user.AccountNumber, &user.Balance)
	if err != nil {
		return models.Principal{}, err
	}
	return models.Principal{User: &user}, nil
}
