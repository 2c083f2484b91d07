package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmeshcher/ration-portal/internal/model"
)

type tokenData struct {
	Token string    `json:"token"`
	User  *wireUser `json:"user"`
}

func (t tokenData) credentials() (*model.Credentials, error) {
	if t.Token == "" {
		return nil, fmt.Errorf("%w: token missing in response", ErrUnavailable)
	}
	c := &model.Credentials{Token: t.Token}
	if t.User != nil {
		c.User = t.User.toModel()
	}
	return c, nil
}

// Login выполняет вход по почте и паролю.
func (c *Client) Login(ctx context.Context, form model.LoginForm) (*model.Credentials, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/login", "", form, nil)
	if err != nil {
		return nil, err
	}

	var data tokenData
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return data.credentials()
}

// Register регистрирует нового сотрудника.
func (c *Client) Register(ctx context.Context, form model.Registration) (*model.Credentials, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/register", "", form, nil)
	if err != nil {
		return nil, err
	}

	var data tokenData
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return data.credentials()
}

// Logout отзывает токен на стороне бэкенда.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/logout", token, nil, nil)
	return err
}

// UserDetails возвращает профиль текущего пользователя.
func (c *Client) UserDetails(ctx context.Context, token string) (*model.User, error) {
	env, err := c.doJSON(ctx, http.MethodGet, "/api/user-details", token, nil, nil)
	if err != nil {
		return nil, err
	}

	var w wireUser
	if err := decodeData(env, &w); err != nil {
		return nil, err
	}
	u := w.toModel()
	return &u, nil
}

// UpdatePassword меняет пароль и возвращает новый токен доступа.
func (c *Client) UpdatePassword(ctx context.Context, token string, form model.PasswordChange) (string, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/password-update", token, form, nil)
	if err != nil {
		return "", err
	}

	var data tokenData
	if err := decodeData(env, &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", fmt.Errorf("%w: token missing in response", ErrUnavailable)
	}
	return data.Token, nil
}
