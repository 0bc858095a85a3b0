package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
)

func TestValidateToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!", models.RoleTeacher)
	now := time.Now().UTC()

	signed, err := svc.generateToken(context.Background(), user, tokenTypeAccess, time.Minute, "", "", now)
	require.NoError(t, err)

	claims, err := svc.validateToken(signed, tokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), claims.UserID)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, string(models.RoleTeacher), claims.Role)
	require.Equal(t, tokenTypeAccess, claims.TokenType)
}

func TestValidateToken_TypeMismatch(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!", models.RoleStudent)
	now := time.Now().UTC()

	access, err := svc.generateToken(context.Background(), user, tokenTypeAccess, time.Minute, "", "", now)
	require.NoError(t, err)
	refresh, err := svc.generateToken(context.Background(), user, tokenTypeRefresh, time.Minute, uuid.New().String(), "", now)
	require.NoError(t, err)

	_, err = svc.validateToken(access, tokenTypeRefresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.validateToken(refresh, tokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.validateToken(access, tokenTypeExamSession)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!", models.RoleStudent)
	// Срок уже истёк; грейс-периода нет.
	past := time.Now().UTC().Add(-2 * time.Minute)

	signed, err := svc.generateToken(context.Background(), user, tokenTypeAccess, time.Minute, "", "", past)
	require.NoError(t, err)

	_, err = svc.validateToken(signed, tokenTypeAccess)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!", models.RoleStudent)
	now := time.Now().UTC()

	signed, err := svc.generateToken(context.Background(), user, tokenTypeAccess, time.Minute, "", "", now)
	require.NoError(t, err)

	// Тот же токен, другой секрет.
	foreignCfg := testCfg()
	foreignCfg.JWTSecret = "another-secret"
	foreign := New(nil, foreignCfg, nil, nil)

	_, err = foreign.validateToken(signed, tokenTypeAccess)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongIssuerOrAudience(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!", models.RoleStudent)
	now := time.Now().UTC()

	signed, err := svc.generateToken(context.Background(), user, tokenTypeAccess, time.Minute, "", "", now)
	require.NoError(t, err)

	badIssuer := testCfg()
	badIssuer.Issuer = "someone-else"
	_, err = New(nil, badIssuer, nil, nil).validateToken(signed, tokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	badAudience := testCfg()
	badAudience.Audience = []string{"other-api"}
	_, err = New(nil, badAudience, nil, nil).validateToken(signed, tokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.validateToken("not.a.jwt", tokenTypeAccess)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.validateToken("", tokenTypeAccess)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestStartExamSession_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, st, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	pw := "Abcdef1!"
	user := activeUser(t, pw, models.RoleStudent)

	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	tp, _, err := svc.LoginUser(ctx, user.Email, pw, "")
	require.NoError(t, err)

	token, expiresAt, err := svc.StartExamSession(ctx, tp.AccessToken, "exam-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(svc.cfg.ExamSessionTTL), expiresAt, 2*time.Second)

	uid, examID, err := svc.ValidateExamSession(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.Equal(t, "exam-42", examID)

	// Exam-session-токен не проходит как access.
	_, err = svc.validateToken(token, tokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestStartExamSession_EmptyExamID(t *testing.T) {
	t.Parallel()

	svc, st, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	pw := "Abcdef1!"
	user := activeUser(t, pw, models.RoleStudent)

	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	tp, _, err := svc.LoginUser(ctx, user.Email, pw, "")
	require.NoError(t, err)

	_, _, err = svc.StartExamSession(ctx, tp.AccessToken, "   ")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyExamID)
}

func TestNewOpaqueToken_UniqueAndDigested(t *testing.T) {
	t.Parallel()

	p1, d1, err := newOpaqueToken()
	require.NoError(t, err)
	p2, d2, err := newOpaqueToken()
	require.NoError(t, err)

	require.NotEqual(t, p1, p2)
	require.NotEqual(t, d1, d2)
	require.NotEqual(t, p1, d1)
	require.Equal(t, d1, opaqueDigest(p1))
}
