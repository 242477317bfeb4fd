package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/digipay/backend/internal/models"
)

func signTestToken(t *testing.T, userID int, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	assert.NoError(t, err)
	return signed
}

func okHandler(t *testing.T, sawPrincipal *models.Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFromContext(r.Context()); ok && sawPrincipal != nil {
			*sawPrincipal = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret-key")

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	gate := NewAuth(db, redisClient)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/transactions", nil)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Authorization header required")
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid authorization header format")
	})

	t.Run("revoked token", func(t *testing.T) {
		token := signTestToken(t, 1, "client")
		redisMock.ExpectExists("blacklist:" + token).SetVal(1)

		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Token revoked")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("invalid signature", func(t *testing.T) {
		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": 1,
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		forgedString, err := forged.SignedString([]byte("wrong-secret"))
		assert.NoError(t, err)
		redisMock.ExpectExists("blacklist:" + forgedString).SetVal(0)

		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+forgedString)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": 1,
			"exp":     time.Now().Add(-time.Minute).Unix(),
		})
		expiredString, err := expired.SignedString([]byte("test-secret-key"))
		assert.NoError(t, err)
		redisMock.ExpectExists("blacklist:" + expiredString).SetVal(0)

		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+expiredString)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("role claim selects the user pool", func(t *testing.T) {
		token := signTestToken(t, 5, "client")
		redisMock.ExpectExists("blacklist:" + token).SetVal(0)
		mock.ExpectQuery("SELECT id, fullname, email, role, blocked").
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "fullname", "email", "role", "blocked", "account_number", "balance"}).
				AddRow(5, "Awa Diop", "awa@example.com", "client", false, "DIGI00005", 700))

		var principal models.Principal
		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, &principal)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotNil(t, principal.User)
		assert.False(t, principal.IsAdmin())
		assert.Equal(t, 5, principal.ID())
		assert.Equal(t, "DIGI00005", principal.AccountNumber())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role claim selects the admin pool", func(t *testing.T) {
		token := signTestToken(t, 1, "admin")
		redisMock.ExpectExists("blacklist:" + token).SetVal(0)
		mock.ExpectQuery("SELECT id, fullname, email, balance FROM admins").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "fullname", "email", "balance"}).
				AddRow(1, "Administrator", "admin@digipay.local", 1000000))

		var principal models.Principal
		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, &principal)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, principal.IsAdmin())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// Users and admins are independent serial sequences, so the same id
	// exists in both pools. The admin token must resolve to the admin
	// even when a user row shares its id: the expectations allow no
	// users query at all.
	t.Run("colliding ids never cross pools", func(t *testing.T) {
		token := signTestToken(t, 1, "admin")
		redisMock.ExpectExists("blacklist:" + token).SetVal(0)
		mock.ExpectQuery("SELECT id, fullname, email, balance FROM admins").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "fullname", "email", "balance"}).
				AddRow(1, "Administrator", "admin@digipay.local", 1000000))

		var principal models.Principal
		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, &principal)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, principal.IsAdmin())
		assert.Nil(t, principal.User)
		assert.Equal(t, "Administrator", principal.Fullname())
		assert.NoError(t, mock.ExpectationsWereMet())

		userToken := signTestToken(t, 1, "client")
		redisMock.ExpectExists("blacklist:" + userToken).SetVal(0)
		mock.ExpectQuery("SELECT id, fullname, email, role, blocked").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "fullname", "email", "role", "blocked", "account_number", "balance"}).
				AddRow(1, "Awa Diop", "awa@example.com", "client", false, "DIGI00001", 700))

		var userPrincipal models.Principal
		req = httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+userToken)
		w = httptest.NewRecorder()

		gate.Authenticate(okHandler(t, &userPrincipal)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, userPrincipal.IsAdmin())
		assert.Equal(t, "Awa Diop", userPrincipal.Fullname())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted principal", func(t *testing.T) {
		token := signTestToken(t, 99, "client")
		redisMock.ExpectExists("blacklist:" + token).SetVal(0)
		mock.ExpectQuery("SELECT id, fullname, email, role, blocked").
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		gate.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no revocation store refuses service", func(t *testing.T) {
		degraded := NewAuth(db, nil)
		token := signTestToken(t, 5, "client")

		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		degraded.Authenticate(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Run("no principal", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/users", nil)
		w := httptest.NewRecorder()

		RequireAdmin(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-admin principal", func(t *testing.T) {
		principal := models.Principal{User: &models.UserAccount{ID: 5, Role: models.RoleClient}}
		req := httptest.NewRequest("GET", "/api/users", nil)
		req = req.WithContext(ContextWithPrincipal(req.Context(), principal))
		w := httptest.NewRecorder()

		RequireAdmin(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "Access denied (admin only)")
	})

	t.Run("admin principal passes", func(t *testing.T) {
		principal := models.Principal{Admin: &models.AdminAccount{ID: 1}}
		req := httptest.NewRequest("GET", "/api/users", nil)
		req = req.WithContext(ContextWithPrincipal(req.Context(), principal))
		w := httptest.NewRecorder()

		RequireAdmin(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
