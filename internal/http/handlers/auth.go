package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/errors"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/http/middleware"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	logctx "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/log"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/redact"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/service"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// RegisterUser создаёт неактивную учётную запись и выписывает
// verification-токен. Сам токен уходит пользователю внешним каналом
// (почтовый сервис — внешний коллаборатор), в ответ не попадает.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w, r)
		return
	}

	userID, verifyToken, err := h.Service.RegisterUser(r.Context(), in.Email, in.Password, models.Role(in.Role))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	logctx.From(r.Context()).Info("verification_token_issued",
		slog.String("user_id", userID.String()),
		slog.String("email", redact.Email(in.Email)),
		slog.String("token", redact.Token()),
	)
	_ = verifyToken // доставка — забота почтового сервиса, см. DESIGN.md.

	writeJSON(w, http.StatusOK, registerResponse{
		UserID: userID.String(),
		Status: "verification_pending",
	})
}

// LoginUser — вход по email+пароль; выдаёт пару токенов и создаёт сессию.
func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w, r)
		return
	}

	pair, _, err := h.Service.LoginUser(r.Context(), in.Email, in.Password, r.Header.Get("User-Agent"))
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.RecordLoginFail()
		}
		apierrors.WriteError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordLoginSuccess()
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
	})
}

// RefreshToken — ротация пары по refresh-токену.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil || in.RefreshToken == "" {
		writeInvalidArgument(w, r)
		return
	}

	pair, _, err := h.Service.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordTokenRefresh()
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
	})
}

// Logout завершает сессию предъявленного refresh-токена.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil || in.RefreshToken == "" {
		writeInvalidArgument(w, r)
		return
	}

	if err := h.Service.Logout(r.Context(), in.RefreshToken); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out"})
}

// LogoutAll завершает все сессии владельца access-токена.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.LogoutAll(r.Context(), user.ID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out_everywhere"})
}

// VerifyEmail активирует учётную запись по одноразовому токену.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in verifyEmailRequest
	if err := decodeStrict(r, &in); err != nil || in.Token == "" {
		writeInvalidArgument(w, r)
		return
	}

	if err := h.Service.VerifyEmail(r.Context(), in.Token); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "verified"})
}

// ForgotPassword — запрос сброса пароля.
// Ответ всегда 200 и одинаковый: по нему нельзя проверить существование e-mail.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotPasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w, r)
		return
	}

	resetToken, err := h.Service.ForgotPassword(r.Context(), in.Email)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if resetToken != "" {
		logctx.From(r.Context()).Info("reset_token_issued",
			slog.String("email", redact.Email(in.Email)),
			slog.String("token", redact.Token()),
		)
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "reset_requested"})
}

// ResetPassword меняет пароль по reset-токену и завершает все сессии.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetPasswordRequest
	if err := decodeStrict(r, &in); err != nil || in.Token == "" {
		writeInvalidArgument(w, r)
		return
	}

	if err := h.Service.ResetPassword(r.Context(), in.Token, in.NewPassword); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "password_reset"})
}

// ChangePassword меняет пароль аутентифицированного пользователя.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var in changePasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w, r)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), user.ID, in.OldPassword, in.NewPassword); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "password_changed"})
}

// currentUser резолвит владельца bearer-токена или пишет 401.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	token, ok := middleware.AuthTokenFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return nil, false
	}

	user, err := h.Service.CurrentUser(r.Context(), token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return nil, false
	}

	return user, true
}
