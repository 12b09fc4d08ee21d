package handler

import (
	"errors"
	"net/http"

	"timetravel/internal/auth"

	"gorm.io/gorm"
)

const memberSinceLayout = "January 2, 2006"

type MeHandler struct {
	DB *gorm.DB
}

type profileDTO struct {
	UserID      uint64 `json:"user_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	MemberSince string `json:"member_since"`
}

func newProfileDTO(p auth.Profile) profileDTO {
	return profileDTO{
		UserID:      p.UserID,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		MemberSince: p.CreatedAt.Format(memberSinceLayout),
	}
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var p auth.Profile
	err := h.DB.WithContext(r.Context()).Where("user_id = ?", uid).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newProfileDTO(p))
}
