// Package service реализует операции портала поверх клиента бэкенда и координаторов корзин.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/cart"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/validation"
)

// Backend описывает контракт клиента бэкенда, используемый сервисом.
type Backend interface {
	Login(ctx context.Context, form model.LoginForm) (*model.Credentials, error)
	Register(ctx context.Context, form model.Registration) (*model.Credentials, error)
	Logout(ctx context.Context, token string) error
	UserDetails(ctx context.Context, token string) (*model.User, error)
	UpdatePassword(ctx context.Context, token string, form model.PasswordChange) (string, error)

	Products(ctx context.Context, token string, page int) (*model.Page[model.Product], error)
	AdminProducts(ctx context.Context, token string, page int) (*model.Page[model.Product], error)
	AdminProduct(ctx context.Context, token string, id int64) (*model.Product, error)
	StoreProduct(ctx context.Context, token string, form model.ProductForm, image *model.Upload) (string, error)
	UpdateProductFields(ctx context.Context, token string, p model.Product, orderUpdate bool) (string, error)
	ImportProducts(ctx context.Context, token string, file model.Upload) (string, error)

	Orders(ctx context.Context, token string, page int) (*model.Page[model.Order], error)
	Order(ctx context.Context, token string, id int64) (*model.Order, error)
	EditLastOrder(ctx context.Context, token string) (string, error)
	AdminOrders(ctx context.Context, token string, page int) (*model.Page[model.Order], error)

	AdminUsers(ctx context.Context, token string, page int, search string) (*model.Page[model.User], error)
	UpdateUser(ctx context.Context, token string, id int64, form model.EmployeeUpdate) (string, error)
	ImportEmployees(ctx context.Context, token string, file model.Upload) (string, error)
	DashboardSummary(ctx context.Context, token string) (*model.DashboardSummary, error)
}

// FormError содержит сообщения базовой проверки формы по полям.
type FormError struct {
	Fields map[string][]string
}

func (e *FormError) Error() string {
	return "invalid form"
}

// ErrInvalidPrice возвращается для цены, которая не является положительным числом.
var ErrInvalidPrice = errors.New("price must be a positive number")

// Service содержит операции портала.
type Service struct {
	backend   Backend
	carts     *cart.Registry
	imageBase string
	logger    *zap.Logger
}

// NewService создаёт сервис. Через imageBase строятся публичные ссылки на изображения товаров.
func NewService(b Backend, carts *cart.Registry, imageBase string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend:   b,
		carts:     carts,
		imageBase: strings.TrimRight(imageBase, "/"),
		logger:    logger,
	}
}

func checkForm(form any) error {
	if fields := validation.Fields(form); fields != nil {
		return &FormError{Fields: fields}
	}
	return nil
}

// Login выполняет вход. Если бэкенд не вернул роль, профиль запрашивается отдельно.
func (s *Service) Login(ctx context.Context, form model.LoginForm) (*model.Credentials, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := checkForm(form); err != nil {
		return nil, err
	}

	creds, err := s.backend.Login(ctx, form)
	if err != nil {
		return nil, err
	}
	return s.completeProfile(ctx, creds)
}

// Register регистрирует сотрудника и сразу выполняет вход.
func (s *Service) Register(ctx context.Context, form model.Registration) (*model.Credentials, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	if err := checkForm(form); err != nil {
		return nil, err
	}

	creds, err := s.backend.Register(ctx, form)
	if err != nil {
		return nil, err
	}
	return s.completeProfile(ctx, creds)
}

func (s *Service) completeProfile(ctx context.Context, creds *model.Credentials) (*model.Credentials, error) {
	if creds.User.Role != "" {
		return creds, nil
	}

	u, err := s.backend.UserDetails(ctx, creds.Token)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	creds.User = *u
	if creds.User.Role == "" {
		creds.User.Role = model.RoleUser
	}
	return creds, nil
}

// Logout отзывает токен и освобождает корзину сессии. Ошибка бэкенда не мешает выходу.
func (s *Service) Logout(ctx context.Context, sess *session.Session) {
	if sess == nil {
		return
	}
	if sess.Token != "" {
		if err := s.backend.Logout(ctx, sess.Token); err != nil {
			s.logger.Warn("backend logout failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}
	s.carts.Drop(sess.ID)
}

// Forget освобождает корзину сессии без обращения к бэкенду, например после отзыва токена.
func (s *Service) Forget(sess *session.Session) {
	if sess != nil {
		s.carts.Drop(sess.ID)
	}
}

// Profile возвращает профиль текущего пользователя.
func (s *Service) Profile(ctx context.Context, sess *session.Session) (*model.User, error) {
	return s.backend.UserDetails(ctx, sess.Token)
}

// ChangePassword меняет пароль и возвращает новый токен.
func (s *Service) ChangePassword(ctx context.Context, sess *session.Session, form model.PasswordChange) (string, error) {
	if err := checkForm(form); err != nil {
		return "", err
	}
	return s.backend.UpdatePassword(ctx, sess.Token, form)
}

// Catalog возвращает страницу каталога и текущую корзину. Цены товаров запоминаются для оценки лимита.
func (s *Service) Catalog(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Product], cart.Snapshot, error) {
	products, err := s.backend.Products(ctx, sess.Token, page)
	if err != nil {
		return nil, cart.Snapshot{}, err
	}
	s.withImages(products.Items)

	c := s.carts.For(sess.ID)
	c.Remember(products.Items)

	if !c.Snapshot().Loaded {
		if err := c.Load(ctx, sess.Token); err != nil {
			s.logger.Warn("load cart failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}
	return products, c.Snapshot(), nil
}

// Cart загружает корзину с бэкенда.
func (s *Service) Cart(ctx context.Context, sess *session.Session) (cart.Snapshot, error) {
	c := s.carts.For(sess.ID)
	err := c.Load(ctx, sess.Token)
	return c.Snapshot(), err
}

// CartSnapshot возвращает локальное состояние корзины без обращения к бэкенду.
func (s *Service) CartSnapshot(sess *session.Session) cart.Snapshot {
	return s.carts.For(sess.ID).Snapshot()
}

// SetCartLine добавляет товар в корзину или меняет его количество.
func (s *Service) SetCartLine(ctx context.Context, sess *session.Session, productID int64, quantity int, lineID int64) (cart.Snapshot, error) {
	c := s.carts.For(sess.ID)
	err := c.AddOrUpdate(ctx, sess.Token, productID, quantity, lineID)
	return c.Snapshot(), err
}

// RemoveCartLine удаляет строку корзины.
func (s *Service) RemoveCartLine(ctx context.Context, sess *session.Session, lineID int64) (cart.Snapshot, error) {
	c := s.carts.For(sess.ID)
	err := c.Remove(ctx, sess.Token, lineID)
	return c.Snapshot(), err
}

// ClearCart очищает корзину после подтверждения.
func (s *Service) ClearCart(ctx context.Context, sess *session.Session, confirmed bool) error {
	return s.carts.For(sess.ID).Clear(ctx, sess.Token, confirmed)
}

// SubmitCart оформляет заказ после подтверждения и возвращает его идентификатор.
func (s *Service) SubmitCart(ctx context.Context, sess *session.Session, confirmed bool) (int64, error) {
	id, err := s.carts.For(sess.ID).Submit(ctx, sess.Token, confirmed)
	if err != nil {
		return 0, err
	}
	s.logger.Info("order placed", zap.String("session", sess.ID), zap.Int64("order_id", id))
	return id, nil
}

// Orders возвращает страницу заказов сотрудника.
func (s *Service) Orders(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Order], error) {
	return s.backend.Orders(ctx, sess.Token, page)
}

// Order возвращает заказ сотрудника.
func (s *Service) Order(ctx context.Context, sess *session.Session, id int64) (*model.Order, error) {
	o, err := s.backend.Order(ctx, sess.Token, id)
	if err != nil {
		return nil, err
	}
	for i := range o.Items {
		o.Items[i].Product.Image = s.imageURL(o.Items[i].Product.Image)
	}
	return o, nil
}

// EditLastOrder открывает последний заказ для редактирования.
// Корзина перечитывается при следующем показе каталога.
func (s *Service) EditLastOrder(ctx context.Context, sess *session.Session) (string, error) {
	msg, err := s.backend.EditLastOrder(ctx, sess.Token)
	if err != nil {
		return "", err
	}
	s.carts.Drop(sess.ID)
	return msg, nil
}

func (s *Service) withImages(products []model.Product) {
	for i := range products {
		products[i].Image = s.imageURL(products[i].Image)
	}
}

// imageURL превращает относительный путь изображения в абсолютную ссылку на бэкенд.
func (s *Service) imageURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || s.imageBase == "" {
		return path
	}
	return s.imageBase + "/" + strings.TrimLeft(path, "/")
}
