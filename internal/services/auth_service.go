package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/digipay/backend/internal/middleware"
	"github.com/digipay/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token string               `json:"token"`
	User  models.PublicProfile `json:"user"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// Login authenticates an email/password pair against the admin pool
// first, then the user pool, and mints a session token on success.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	principal, err := s.findByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[AUTH] Principal lookup failed for %s: %v", req.Email, err)
			SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
			return
		}
		// Unknown email gets the same outcome as a bad password.
		log.Printf("[AUTH] No principal for email: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if principal.User != nil && principal.User.Blocked {
		log.Printf("[AUTH] Blocked account login attempt: %s", req.Email)
		SendErrorResponse(w, "Account blocked", http.StatusForbidden, nil)
		return
	}

	var hashedPassword string
	if principal.Admin != nil {
		hashedPassword = principal.Admin.Password
	} else {
		hashedPassword = principal.User.Password
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(principal.ID(), principal.Role())
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %d: %v", principal.ID(), err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for %s (%s)", req.Email, principal.Role())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token: token,
		User:  principal.Profile(),
	})
}

// Logout revokes the presented bearer token until its own expiry. The
// token is decoded without verifying trust: a forged token in the
// revocation set hurts nobody. Logging out twice succeeds silently,
// but success is never reported when the revocation entry could not be
// written.
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		SendErrorResponse(w, "Missing token", http.StatusBadRequest, nil)
		return
	}
	if s.redis == nil {
		log.Printf("[AUTH] Revocation store unavailable")
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	ttl := revocationTTL(token)
	if ttl > 0 {
		key := fmt.Sprintf("blacklist:%s", token)
		if err := s.redis.Set(r.Context(), key, "1", ttl).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
			SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Me returns the authenticated principal's public profile.
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthenticated", http.StatusUnauthorized, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(principal.Profile())
}

// findByEmail checks the admin pool first, then the users. Returns
// sql.ErrNoRows when the email matches neither.
func (s *AuthService) findByEmail(ctx context.Context, email string) (models.Principal, error) {
	var admin models.AdminAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fullname, email, password, balance FROM admins WHERE email = $1`,
		email).Scan(&admin.ID, &admin.Fullname, &admin.Email, &admin.Password, &admin.Balance)
	if err == nil {
		return models.Principal{Admin: &admin}, nil
	}
	if err != sql.ErrNoRows {
		return models.Principal{}, err
	}

	var user models.UserAccount
	err = s.db.QueryRowContext(ctx,
		`SELECT id, fullname, email, password, role, blocked, COALESCE(account_number, ''), balance FROM users WHERE email = $1`,
		email).Scan(&user.ID, &user.Fullname, &user.Email, &user.Password,
		&user.Role, &user.Blocked, &user.AccountNumber, &user.Balance)
	if err != nil {
		return models.Principal{}, err
	}
	return models.Principal{User: &user}, nil
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

// revocationTTL derives how long a revocation entry must outlive the
// token: until the token's own exp claim, or one hour when the claim is
// absent or unreadable.
func revocationTTL(tokenString string) time.Duration {
	defaultTTL := time.Hour

	parsed, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return defaultTTL
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTTL
	}
	return time.Until(exp.Time)
}

func generateJWT(principalID int, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": principalID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

// hashPassword derives an argon2id hash and stores it in PHC format,
// parameters included, so stored passwords survive later changes to
// the argon2 configuration.
func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	timeCost := uint32(viper.GetInt("argon2.time"))
	memory := uint32(viper.GetInt("argon2.memory"))
	threads := uint8(viper.GetInt("argon2.threads"))

	hash := argon2.IDKey([]byte(password), salt, timeCost, memory, threads,
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, timeCost, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// verifyPassword recomputes the hash with the parameters embedded in
// the stored string, not the live configuration.
func verifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}
