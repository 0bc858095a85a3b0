// csrf реализует stateless double-submit защиту от CSRF.
//
// Токен имеет вид "{session_id}:{timestamp}:{hmac_sha256(session_id:timestamp)}"
// и валиден, пока не истёк его возраст и сходится подпись. Серверного
// состояния нет: подпись считается HMAC-ключом процесса, токен ротируется
// в каждом ответе.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformed — токен битый: не три поля или нечисловой timestamp.
	ErrMalformed = errors.New("csrf token malformed")
	// ErrExpired — возраст токена превысил лимит.
	ErrExpired = errors.New("csrf token expired")
	// ErrSignature — подпись не сходится (подделка или чужой секрет).
	ErrSignature = errors.New("csrf token signature mismatch")
	// ErrSessionMismatch — токен выписан для другой сессии.
	ErrSessionMismatch = errors.New("csrf token session mismatch")
)

// exemptPaths — пути, не требующие CSRF-токена даже на мутирующих методах:
// вход/регистрация (токена ещё нет), webhook платёжного шлюза (подпись своя),
// служебные эндпойнты.
var exemptPaths = map[string]struct{}{
	"/auth/login":           {},
	"/auth/register":        {},
	"/auth/refresh":         {},
	"/payments/upi/webhook": {},
	"/livez":                {},
	"/healthz":              {},
	"/metrics":              {},
}

const staticPrefix = "/static/"

// Guard выписывает и проверяет CSRF-токены.
type Guard struct {
	secret   []byte
	tokenTTL time.Duration
}

// New создаёт Guard с заданным секретом и временем жизни токена.
func New(secret string, tokenTTL time.Duration) *Guard {
	return &Guard{secret: []byte(secret), tokenTTL: tokenTTL}
}

// Generate выписывает токен для сессии sessionID (может быть пустым
// для анонимных страниц).
func (g *Guard) Generate(sessionID string, now time.Time) string {
	ts := strconv.FormatInt(now.UTC().Unix(), 10)
	return fmt.Sprintf("%s:%s:%s", sessionID, ts, g.sign(sessionID, ts))
}

// Validate проверяет токен: формат, принадлежность сессии, возраст, подпись.
// Битые токены отклоняются (fail closed), подпись сверяется за константное время.
func (g *Guard) Validate(token, sessionID string, now time.Time) error {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return ErrMalformed
	}

	tokenSession, ts, sig := parts[0], parts[1], parts[2]

	if sessionID != "" && tokenSession != sessionID {
		return ErrSessionMismatch
	}

	issuedUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformed
	}

	age := now.UTC().Sub(time.Unix(issuedUnix, 0).UTC())
	if age > g.tokenTTL || age < 0 {
		return ErrExpired
	}

	if !hmac.Equal([]byte(sig), []byte(g.sign(tokenSession, ts))) {
		return ErrSignature
	}

	return nil
}

// IsExempt сообщает, что путь не охраняется (фиксированный allow-list
// плюс префикс статики).
func IsExempt(path string) bool {
	if _, ok := exemptPaths[path]; ok {
		return true
	}

	return strings.HasPrefix(path, staticPrefix)
}

func (g *Guard) sign(sessionID, ts string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(sessionID + ":" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
