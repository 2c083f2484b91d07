package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// CookieName: имя cookie с идентификатором сессии.
const CookieName = "ration_session"

// Manager выдаёт сессии и связывает их с подписанным cookie.
// Токен сессии меняют только Start, Rotate и Destroy.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager создаёт менеджер сессий. Пустой secret заменяется случайным ключом,
// тогда сессии не переживают перезапуск процесса.
func NewManager(store Store, secret string, ttl time.Duration, secure bool) *Manager {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &Manager{
		store:  store,
		secret: key,
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// TTL возвращает срок жизни сессии.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Load возвращает сессию по cookie запроса или ErrNotFound.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrNotFound
	}

	id, ok := m.parseCookie(cookie.Value)
	if !ok {
		return nil, ErrNotFound
	}

	return m.store.Get(r.Context(), id)
}

// Start создаёт сессию для полученных при входе учётных данных и выставляет cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, creds model.Credentials) (*Session, error) {
	if creds.Token == "" {
		return nil, errors.New("start session: empty token")
	}

	csrf, err := newCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Token:     creds.Token,
		User:      creds.User,
		CSRFToken: csrf,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.setCookie(w, s.ID, s.ExpiresAt)
	return s, nil
}

// Save сохраняет изменения сессии, например очередь уведомлений или кэш профиля.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.store.Save(ctx, s)
}

// Rotate заменяет токен бэкенда, например после смены пароля.
func (m *Manager) Rotate(ctx context.Context, s *Session, token string) error {
	if token == "" {
		return errors.New("rotate session: empty token")
	}
	s.Token = token
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	return nil
}

// Destroy удаляет сессию и сбрасывает cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	m.clearCookie(w)
	if s == nil {
		return nil
	}
	s.Token = ""
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.sign(id),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) signature(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *Manager) sign(id string) string {
	return id + "." + m.signature(id)
}

func (m *Manager) parseCookie(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.signature(id))) {
		return "", false
	}
	return id, true
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
