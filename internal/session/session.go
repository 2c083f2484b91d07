// Package session хранит серверные сессии портала: токен бэкенда, кэш профиля и уведомления.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// ErrNotFound возвращается, если сессия отсутствует или истекла.
var ErrNotFound = errors.New("session not found")

// NoticeKind описывает вид уведомления.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

// Notice: уведомление, показываемое при следующей отрисовке страницы.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// Session описывает сессию пользователя портала.
type Session struct {
	ID        string
	Token     string
	User      model.User
	Notices   []Notice
	CSRFToken string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Authenticated сообщает, есть ли у сессии токен бэкенда.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// Expired сообщает, истёк ли срок жизни сессии к моменту now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Role возвращает роль из кэшированного профиля.
func (s *Session) Role() model.Role {
	if s == nil {
		return ""
	}
	return s.User.Role
}

// AddNotice ставит уведомление в очередь.
func (s *Session) AddNotice(kind NoticeKind, text string) {
	if text == "" {
		return
	}
	s.Notices = append(s.Notices, Notice{Kind: kind, Text: text})
}

// PopNotices возвращает накопленные уведомления и очищает очередь.
func (s *Session) PopNotices() []Notice {
	n := s.Notices
	s.Notices = nil
	return n
}

// Store хранит сессии.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession кладёт сессию в контекст запроса.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext извлекает сессию из контекста запроса.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
