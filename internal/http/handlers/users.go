package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/errors"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/http/middleware"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Token      string    `json:"token"`
	DeviceInfo string    `json:"device_info,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type examSessionRequest struct {
	ExamID string `json:"exam_id"`
}

type examSessionResponse struct {
	ExamSessionToken string    `json:"exam_session_token"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func userToResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// Me возвращает проекцию владельца access-токена.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// Sessions возвращает активные сессии владельца access-токена.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	active, err := h.Service.Sessions(r.Context(), user.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(active))
	for _, s := range active {
		out = append(out, sessionResponse{
			Token:      s.Token,
			DeviceInfo: s.DeviceInfo,
			CreatedAt:  s.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// StartExamSession выписывает exam-session-токен (роль >= student).
func (h *Handlers) StartExamSession(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.AuthTokenFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	var in examSessionRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w, r)
		return
	}

	examToken, expiresAt, err := h.Service.StartExamSession(r.Context(), token, in.ExamID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, examSessionResponse{
		ExamSessionToken: examToken,
		ExpiresAt:        expiresAt,
	})
}

// AdminGetUser возвращает пользователя по ID; требует роль >= admin.
// Ошибки токена дают 401, валидный токен с младшей ролью — 403.
func (h *Handlers) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.AuthTokenFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	if _, err := h.Service.RequireRole(r.Context(), token, models.RoleAdmin); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeInvalidArgument(w, r)
		return
	}

	user, err := h.Service.UserByID(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}
