package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/spf13/viper"

	"github.com/digipay/backend/internal/middleware"
	"github.com/digipay/backend/internal/models"
)

// UserService covers account provisioning and administration. Account
// numbers come from the sequence allocator; creation fails outright
// when allocation fails.
type UserService struct {
	db        *sql.DB
	sequence  *SequenceService
	validator *validator.Validate
}

func NewUserService(db *sql.DB, sequence *SequenceService) *UserService {
	return &UserService{
		db:        db,
		sequence:  sequence,
		validator: validator.New(),
	}
}

// CreateUserRequest represents the provisioning payload
type CreateUserRequest struct {
	Fullname string `json:"fullname" validate:"required,min=2"`
	DOB      string `json:"dob" validate:"required,datetime=2006-01-02"`
	IDCard   string `json:"idCard" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Address  string `json:"address" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=4"`
	Role     string `json:"role" validate:"required,oneof=client distributeur"`
	FileURL  string `json:"fileUrl" validate:"omitempty,max=512"`
}

// UpdateUserRequest represents the mutable profile fields
type UpdateUserRequest struct {
	Fullname string `json:"fullname" validate:"omitempty,min=2"`
	Phone    string `json:"phone" validate:"omitempty"`
	Address  string `json:"address" validate:"omitempty"`
	Password string `json:"password" validate:"omitempty,min=4"`
	Role     string `json:"role" validate:"omitempty,oneof=client distributeur"`
}

// BlockUsersRequest represents the bulk block/unblock payload
type BlockUsersRequest struct {
	IDs   []int `json:"ids" validate:"required,min=1"`
	Block bool  `json:"block"`
}

// CreateUser handles POST /users (admin only).
func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateUserRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil {
		SendErrorResponse(w, "Invalid date of birth", http.StatusBadRequest, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[USERS] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	accountNumber, err := s.sequence.GenerateAccountNumber(r.Context())
	if err != nil {
		log.Printf("[USERS] Account number allocation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to allocate account number", http.StatusInternalServerError, nil)
		return
	}

	var userID int
	err = s.db.QueryRowContext(r.Context(), `
		INSERT INTO users (fullname, dob, id_card, phone, address, email, password, role, account_number, file_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		req.Fullname, dob, req.IDCard, req.Phone, req.Address,
		strings.ToLower(req.Email), hashedPassword, req.Role, accountNumber, req.FileURL).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[USERS] Duplicate identity for %s: %v", req.Email, err)
			SendErrorResponse(w, "Email, ID card or phone already in use", http.StatusConflict, nil)
			return
		}
		log.Printf("[USERS] User creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[USERS] User created - ID: %d, account: %s", userID, accountNumber)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"message": "User created",
		"user": map[string]any{
			"id":            userID,
			"fullname":      req.Fullname,
			"email":         strings.ToLower(req.Email),
			"role":          req.Role,
			"accountNumber": accountNumber,
			"phone":         req.Phone,
			"address":       req.Address,
			"fileUrl":       req.FileURL,
		},
	})
}

// ListUsers handles GET /users (admin only) with paging and fullname
// search.
func (s *UserService) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := 1
	limit := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	search := r.URL.Query().Get("search")

	var total int
	if err := s.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM users WHERE fullname ILIKE $1`,
		"%"+search+"%").Scan(&total); err != nil {
		log.Printf("[USERS] Count failed: %v", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, fullname, dob, id_card, phone, address, email, role, blocked,
		       COALESCE(account_number, ''), balance, COALESCE(file_url, ''), created_at, updated_at
		FROM users
		WHERE fullname ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		"%"+search+"%", limit, (page-1)*limit)
	if err != nil {
		log.Printf("[USERS] Listing failed: %v", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.UserAccount{}
	for rows.Next() {
		var u models.UserAccount
		if err := rows.Scan(&u.ID, &u.Fullname, &u.DOB, &u.IDCard, &u.Phone, &u.Address,
			&u.Email, &u.Role, &u.Blocked, &u.AccountNumber, &u.Balance,
			&u.FileURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			log.Printf("[USERS] Row scan failed: %v", err)
			SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"page":  page,
		"limit": limit,
		"total": total,
		"users": users,
	})
}

// GetUser handles GET /users/{id}: admins or the user themself.
func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorizeSelfOrAdmin(w, r)
	if !ok {
		return
	}

	user, err := s.fetchUser(r.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[USERS] Fetch failed for %d: %v", id, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"user": user})
}

// UpdateUser handles PUT /users/{id}: admins or the user themself;
// only admins may change roles.
func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorizeSelfOrAdmin(w, r)
	if !ok {
		return
	}
	principal, _ := middleware.PrincipalFromContext(r.Context())

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req UpdateUserRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Role != "" && !principal.IsAdmin() {
		req.Role = ""
	}

	set := []string{"updated_at = NOW()"}
	args := []any{}
	arg := 1
	appendSet := func(column string, value any) {
		set = append(set, fmt.Sprintf("%s = $%d", column, arg))
		args = append(args, value)
		arg++
	}
	if req.Fullname != "" {
		appendSet("fullname", req.Fullname)
	}
	if req.Phone != "" {
		appendSet("phone", req.Phone)
	}
	if req.Address != "" {
		appendSet("address", req.Address)
	}
	if req.Role != "" {
		appendSet("role", req.Role)
	}
	if req.Password != "" {
		hashed, err := hashPassword(req.Password)
		if err != nil {
			log.Printf("[USERS] Password hashing failed for %d: %v", id, err)
			SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
			return
		}
		appendSet("password", hashed)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(set, ", "), arg)
	result, err := s.db.ExecContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[USERS] Update failed for %d: %v", id, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	user, err := s.fetchUser(r.Context(), id)
	if err != nil {
		log.Printf("[USERS] Fetch after update failed for %d: %v", id, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"message": "User updated", "user": user})
}

// DeleteUser handles DELETE /users/{id}: admins or the user themself.
func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorizeSelfOrAdmin(w, r)
	if !ok {
		return
	}

	result, err := s.db.ExecContext(r.Context(), `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		log.Printf("[USERS] Delete failed for %d: %v", id, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[USERS] User %d deleted", id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "User deleted"})
}

// BlockUsers handles POST /users/block (admin only): bulk block or
// unblock. Blocked users are rejected at login, not at transfer time.
func (s *UserService) BlockUsers(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req BlockUsersRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.db.ExecContext(r.Context(),
		`UPDATE users SET blocked = $1, updated_at = NOW() WHERE id = ANY($2)`,
		req.Block, pq.Array(req.IDs))
	if err != nil {
		log.Printf("[USERS] Block update failed: %v", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	affected, _ := result.RowsAffected()
	message := "Users unblocked"
	if req.Block {
		message = "Users blocked"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":       message,
		"modifiedCount": affected,
	})
}

// SeedAdmin creates the default admin when none exists with the
// configured email. Called once at startup.
func (s *UserService) SeedAdmin(ctx context.Context) error {
	email := viper.GetString("admin.email")
	password := viper.GetString("admin.password")
	if password == "" {
		log.Println("[USERS] No admin password configured, skipping admin seeding")
		return nil
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM admins WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists {
		log.Printf("[USERS] Admin %s already present", email)
		return nil
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admins (fullname, email, password, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		viper.GetString("admin.fullname"), email, hashed, viper.GetInt64("admin.initial_balance"))
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	log.Printf("[USERS] Default admin %s created", email)
	return nil
}

func (s *UserService) fetchUser(ctx context.Context, id int) (*models.UserAccount, error) {
	var u models.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, fullname, dob, id_card, phone, address, email, role, blocked,
		       COALESCE(account_number, ''), balance, COALESCE(file_url, ''), created_at, updated_at
		FROM users WHERE id = $1`,
		id).Scan(&u.ID, &u.Fullname, &u.DOB, &u.IDCard, &u.Phone, &u.Address,
		&u.Email, &u.Role, &u.Blocked, &u.AccountNumber, &u.Balance,
		&u.FileURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// authorizeSelfOrAdmin parses the {id} route param and enforces that
// the caller is an admin or the user in question.
func (s *UserService) authorizeSelfOrAdmin(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return 0, false
	}

	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthenticated", http.StatusUnauthorized, nil)
		return 0, false
	}
	if !principal.IsAdmin() && principal.ID() != id {
		SendErrorResponse(w, "Access denied", http.StatusForbidden, nil)
		return 0, false
	}

	return id, true
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
