package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"timetravel/internal/auth"

	"gorm.io/gorm"
)

type AuthHandler struct {
	DB       *gorm.DB
	Sessions *auth.Sessions
}

type registerReq struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

var errEmailTaken = errors.New("email already used")

// createUserError maps a unique violation on users to errEmailTaken. Any
// other failure is wrapped and returned.
func createUserError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errEmailTaken
	}
	return fmt.Errorf("create user: %w", err)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		http.Error(w, "first_name and last_name are required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// user and profile land together or not at all
	var tokens auth.Tokens
	err = h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		u := auth.User{Email: req.Email, PasswordHash: hash}
		if err := tx.Create(&u).Error; err != nil {
			return createUserError(err)
		}
		p := auth.Profile{
			UserID:    u.ID,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		t, err := h.Sessions.IssueTx(tx, u.ID)
		if err != nil {
			return err
		}
		tokens = t
		return nil
	})
	if errors.Is(err, errEmailTaken) {
		http.Error(w, "email already used", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("register email=%s: %v\n", req.Email, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, tokens)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	var u auth.User
	if err := h.DB.WithContext(r.Context()).Where("email = ?", req.Email).First(&u).Error; err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !auth.ComparePassword(u.PasswordHash, req.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tokens, err := h.Sessions.Issue(r.Context(), u.ID)
	if err != nil {
		log.Printf("login user=%d: %v\n", u.ID, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tokens, err := h.Sessions.Refresh(r.Context(), req.RefreshToken)
	if errors.Is(err, auth.ErrInvalidRefresh) {
		http.Error(w, "session expired", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("refresh session: %v\n", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Sessions.Revoke(r.Context(), req.RefreshToken); err != nil {
		log.Printf("logout: %v\n", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword checks the current password, stores the new hash and ends
// every refresh session of the user.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req changePasswordReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var u auth.User
	if err := h.DB.WithContext(r.Context()).First(&u, uid).Error; err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !auth.ComparePassword(u.PasswordHash, req.CurrentPassword) {
		http.Error(w, "current password is incorrect", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if err := h.DB.WithContext(r.Context()).Model(&u).Update("password_hash", hash).Error; err != nil {
		log.Printf("change password user=%d: %v\n", uid, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if err := h.Sessions.RevokeAll(r.Context(), uid); err != nil {
		log.Printf("change password revoke user=%d: %v\n", uid, err)
	}
	w.WriteHeader(http.StatusNoContent)
}
