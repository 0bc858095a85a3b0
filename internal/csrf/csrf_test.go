package csrf

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newGuard() *Guard {
	return New("csrf-unit-secret", time.Hour)
}

func TestGenerateValidate_RoundTrip(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	token := g.Generate("sess-1", now)
	require.NoError(t, g.Validate(token, "sess-1", now))

	// Пустой sessionID на проверке — принадлежность не сверяется.
	require.NoError(t, g.Validate(token, "", now))
}

func TestValidate_AnonymousToken(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	token := g.Generate("", now)
	require.NoError(t, g.Validate(token, "", now))
}

func TestValidate_SessionMismatch(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	token := g.Generate("sess-1", now)
	err := g.Validate(token, "sess-2", now)
	require.ErrorIs(t, err, ErrSessionMismatch)
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()

	g := newGuard()
	// Целая секунда: ts в токене усечён до секунд, и дробная часть
	// сместила бы возраст за границу TTL.
	issued := time.Unix(time.Now().Unix(), 0)

	token := g.Generate("sess-1", issued)

	// Ровно на границе часа токен ещё валиден.
	require.NoError(t, g.Validate(token, "sess-1", issued.Add(time.Hour)))

	// Секундой позже — уже нет.
	err := g.Validate(token, "sess-1", issued.Add(time.Hour+time.Second))
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidate_FutureTimestamp(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	// Токен «из будущего» (переставленные часы или подделка ts).
	token := g.Generate("sess-1", now.Add(10*time.Minute))
	err := g.Validate(token, "sess-1", now)
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidate_TamperedSignature(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	token := g.Generate("sess-1", now)

	// Портим последний байт подписи.
	last := token[len(token)-1]
	flip := byte('0')
	if last == '0' {
		flip = '1'
	}
	tampered := token[:len(token)-1] + string(flip)

	err := g.Validate(tampered, "sess-1", now)
	require.ErrorIs(t, err, ErrSignature)
}

func TestValidate_ForeignSecret(t *testing.T) {
	t.Parallel()

	now := time.Now()
	token := New("secret-a", time.Hour).Generate("sess-1", now)

	err := New("secret-b", time.Hour).Validate(token, "sess-1", now)
	require.ErrorIs(t, err, ErrSignature)
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	for _, token := range []string{
		"",
		"just-one-field",
		"two:fields",
		"a:b:c:d",
		"sess:not-a-number:deadbeef",
	} {
		err := g.Validate(token, "sess", now)
		require.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}
}

func TestValidate_TamperedTimestampBreaksSignature(t *testing.T) {
	t.Parallel()

	g := newGuard()
	now := time.Now()

	token := g.Generate("sess-1", now.Add(-2*time.Hour))
	parts := strings.Split(token, ":")
	require.Len(t, parts, 3)

	// Продлеваем ts, не трогая подпись: возраст сходится, подпись — нет.
	fresh := strings.Join([]string{parts[0], g.freshTS(now), parts[2]}, ":")
	err := g.Validate(fresh, "sess-1", now)
	require.ErrorIs(t, err, ErrSignature)
}

// freshTS — ts из валидного токена, выписанного сейчас.
func (g *Guard) freshTS(now time.Time) string {
	return strings.Split(g.Generate("", now), ":")[1]
}

func TestIsExempt(t *testing.T) {
	t.Parallel()

	for _, path := range []string{
		"/auth/login",
		"/auth/register",
		"/auth/refresh",
		"/payments/upi/webhook",
		"/livez",
		"/healthz",
		"/metrics",
		"/static/js/app.js",
	} {
		require.True(t, IsExempt(path), "path %q", path)
	}

	for _, path := range []string{
		"/auth/logout",
		"/auth/password/change",
		"/exams/session",
		"/staticfile",
	} {
		require.False(t, IsExempt(path), "path %q", path)
	}
}
