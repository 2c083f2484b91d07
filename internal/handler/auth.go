package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/view"
)

// Home перенаправляет на панель по роли или на страницу входа.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	if !s.Authenticated() {
		redirect(w, r, "/auth/login")
		return
	}
	redirect(w, r, homeFor(s.Role()))
}

// LoginPage показывает форму входа.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if s := current(r); s.Authenticated() {
		redirect(w, r, homeFor(s.Role()))
		return
	}
	h.render(w, r, http.StatusOK, "login", "Sign in", view.AuthData{Form: view.NewForm(nil)})
}

// Login выполняет вход и открывает сессию.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var form model.LoginForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	creds, err := h.service.Login(r.Context(), form)
	if err != nil {
		h.logFailure(r, err)
		h.render(w, r, http.StatusUnprocessableEntity, "login", "Sign in",
			view.AuthData{Form: formState(values(r.PostForm, "email"), err)})
		return
	}

	h.startSession(w, r, *creds)
}

// SignupPage показывает форму регистрации.
func (h *Handler) SignupPage(w http.ResponseWriter, r *http.Request) {
	if s := current(r); s.Authenticated() {
		redirect(w, r, homeFor(s.Role()))
		return
	}
	h.render(w, r, http.StatusOK, "signup", "Sign up", view.AuthData{Form: view.NewForm(nil)})
}

// Signup регистрирует сотрудника и открывает сессию.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var form model.Registration
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	creds, err := h.service.Register(r.Context(), form)
	if err != nil {
		h.logFailure(r, err)
		h.render(w, r, http.StatusUnprocessableEntity, "signup", "Sign up",
			view.AuthData{Form: formState(values(r.PostForm, "name", "email"), err)})
		return
	}

	h.startSession(w, r, *creds)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, creds model.Credentials) {
	if old := current(r); old != nil {
		if err := h.sessions.Destroy(r.Context(), w, old); err != nil {
			h.logger.Warn("destroy previous session failed", zap.String("session", old.ID), zap.Error(err))
		}
	}

	s, err := h.sessions.Start(r.Context(), w, creds)
	if err != nil {
		h.logger.Error("start session error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.logger.Info("user signed in", zap.String("session", s.ID), zap.Int64("user_id", s.User.ID), zap.String("role", string(s.Role())))
	redirect(w, r, homeFor(s.Role()))
}

// Logout отзывает токен, удаляет сессию и ведёт на страницу входа.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := current(r); s != nil {
		h.service.Logout(r.Context(), s)
		if err := h.sessions.Destroy(r.Context(), w, s); err != nil {
			h.logger.Warn("destroy session failed", zap.String("session", s.ID), zap.Error(err))
		}
	}
	redirect(w, r, "/auth/login")
}

// PasswordPage показывает форму смены пароля.
func (h *Handler) PasswordPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "password", "Update Password",
		view.PasswordData{Form: view.NewForm(nil), Action: r.URL.Path})
}

// UpdatePassword меняет пароль и заменяет токен сессии новым.
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var form model.PasswordChange
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	s := current(r)
	token, err := h.service.ChangePassword(r.Context(), s, form)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		h.logFailure(r, err)
		h.render(w, r, http.StatusUnprocessableEntity, "password", "Update Password",
			view.PasswordData{Form: formState(nil, err), Action: r.URL.Path})
		return
	}

	if token != "" {
		if err := h.sessions.Rotate(r.Context(), s, token); err != nil {
			h.logger.Error("rotate session token error", zap.String("session", s.ID), zap.Error(err))
		}
	}

	h.notify(r, session.NoticeSuccess, "Password updated.")
	redirect(w, r, r.URL.Path)
}
