// Package handler содержит HTTP-обработчики страниц портала.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/backend"
	"github.com/mmeshcher/ration-portal/internal/cart"
	"github.com/mmeshcher/ration-portal/internal/middleware"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/service"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/view"
)

const (
	maxFormSize   = 1 << 20
	maxUploadSize = 10 << 20
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, form model.LoginForm) (*model.Credentials, error)
	Register(ctx context.Context, form model.Registration) (*model.Credentials, error)
	Logout(ctx context.Context, sess *session.Session)
	Forget(sess *session.Session)
	Profile(ctx context.Context, sess *session.Session) (*model.User, error)
	ChangePassword(ctx context.Context, sess *session.Session, form model.PasswordChange) (string, error)

	Catalog(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Product], cart.Snapshot, error)
	Cart(ctx context.Context, sess *session.Session) (cart.Snapshot, error)
	CartSnapshot(sess *session.Session) cart.Snapshot
	SetCartLine(ctx context.Context, sess *session.Session, productID int64, quantity int, lineID int64) (cart.Snapshot, error)
	RemoveCartLine(ctx context.Context, sess *session.Session, lineID int64) (cart.Snapshot, error)
	ClearCart(ctx context.Context, sess *session.Session, confirmed bool) error
	SubmitCart(ctx context.Context, sess *session.Session, confirmed bool) (int64, error)

	Orders(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Order], error)
	Order(ctx context.Context, sess *session.Session, id int64) (*model.Order, error)
	EditLastOrder(ctx context.Context, sess *session.Session) (string, error)

	DashboardSummary(ctx context.Context, sess *session.Session) (*model.DashboardSummary, error)
	AdminProducts(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Product], error)
	AdminProduct(ctx context.Context, sess *session.Session, id int64) (*model.Product, error)
	SaveProduct(ctx context.Context, sess *session.Session, form model.ProductForm, image *model.Upload) (string, error)
	ToggleProductStatus(ctx context.Context, sess *session.Session, id int64, orderUpdate bool) (string, error)
	UpdateProductPrice(ctx context.Context, sess *session.Session, id int64, rawPrice string, orderUpdate bool) (string, error)
	AdminOrders(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Order], error)
	AdminOrder(ctx context.Context, sess *session.Session, id int64) (*model.Order, error)
	Employees(ctx context.Context, sess *session.Session, page int, search string) (*model.Page[model.User], error)
	UpdateEmployee(ctx context.Context, sess *session.Session, id int64, form model.EmployeeUpdate) (string, error)
	ImportEmployees(ctx context.Context, sess *session.Session, file model.Upload) (string, error)
	ImportProducts(ctx context.Context, sess *session.Session, file model.Upload) (string, error)
}

// Handler реализует HTTP-обработчики страниц портала.
type Handler struct {
	service  Service
	sessions *session.Manager
	views    *view.Renderer
	metrics  *middleware.Metrics
	logger   *zap.Logger
	decoder  *schema.Decoder
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, sessions *session.Manager, views *view.Renderer, metrics *middleware.Metrics, logger *zap.Logger) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Handler{
		service:  s,
		sessions: sessions,
		views:    views,
		metrics:  metrics,
		logger:   logger,
		decoder:  decoder,
	}
}

func current(r *http.Request) *session.Session {
	s, _ := session.FromContext(r.Context())
	return s
}

// render отрисовывает страницу и забирает накопленные в сессии уведомления.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	p := view.Page{
		Title: title,
		Path:  r.URL.Path,
		Data:  data,
	}

	if s := current(r); s.Authenticated() {
		u := s.User
		p.User = &u
		p.CSRFToken = s.CSRFToken
		if p.Notices = s.PopNotices(); len(p.Notices) > 0 {
			if err := h.sessions.Save(r.Context(), s); err != nil {
				h.logger.Warn("save session failed", zap.String("session", s.ID), zap.Error(err))
			}
		}
	}

	h.views.Render(w, status, name, p)
}

// notify ставит уведомление в очередь сессии для следующей страницы.
func (h *Handler) notify(r *http.Request, kind session.NoticeKind, text string) {
	s := current(r)
	if s == nil || text == "" {
		return
	}
	s.AddNotice(kind, text)
	if err := h.sessions.Save(r.Context(), s); err != nil {
		h.logger.Warn("save session failed", zap.String("session", s.ID), zap.Error(err))
	}
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// expired завершает сессию, если бэкенд отверг токен. Возвращает true, если ответ уже отправлен.
func (h *Handler) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}

	if s := current(r); s != nil {
		h.logger.Info("backend rejected token", zap.String("session", s.ID))
		h.service.Forget(s)
		if derr := h.sessions.Destroy(r.Context(), w, s); derr != nil {
			h.logger.Warn("destroy session failed", zap.String("session", s.ID), zap.Error(derr))
		}
	}
	redirect(w, r, middleware.LoginPath)
	return true
}

// fail обрабатывает ошибку действия: 401 ведёт на вход, остальное становится уведомлением.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	if h.expired(w, r, err) {
		return
	}
	h.logFailure(r, err)
	h.notify(r, session.NoticeError, message(err))
	redirect(w, r, back)
}

// loadError описывает неудачную загрузку страницы и код ответа для неё.
func (h *Handler) loadError(r *http.Request, err error) (view.LoadError, int) {
	h.logFailure(r, err)
	return view.LoadError{Error: message(err), RetryURL: r.URL.RequestURI()}, statusFor(err)
}

func (h *Handler) logFailure(r *http.Request, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		h.logger.Debug("backend rejected request", zap.String("path", r.URL.Path), zap.Error(err))
		return
	}
	if errors.Is(err, backend.ErrUnavailable) {
		h.logger.Warn("backend unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		return
	}
	if isUserError(err) {
		return
	}
	h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
}

// formState возвращает форму с введёнными значениями и ошибками для повторной отрисовки.
func formState(values map[string]string, err error) view.Form {
	f := view.NewForm(values)

	var formErr *service.FormError
	if errors.As(err, &formErr) {
		f.Errors = formErr.Fields
		return f
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Validation() {
		f.Errors = apiErr.Fields
		if apiErr.StatusCode != http.StatusUnprocessableEntity {
			f.Error = apiErr.Message
		}
		return f
	}

	f.Error = message(err)
	return f
}

var userErrors = map[error]string{
	cart.ErrInvalidQuantity:      "Quantity must be at least 1.",
	cart.ErrCapExceeded:          fmt.Sprintf("Your cart would exceed the ration limit of %s.", view.Money(model.DefaultPolicy.HardCap)),
	cart.ErrConfirmationRequired: "Please confirm this action.",
	cart.ErrEmptyCart:            "Your cart is empty.",
	cart.ErrLineNotFound:         "This item is no longer in your cart.",
	cart.ErrSyncInProgress:       "Your cart is still being saved. Please try again in a moment.",
	service.ErrInvalidPrice:      "Price must be a positive number.",
}

func isUserError(err error) bool {
	for target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var formErr *service.FormError
	return errors.As(err, &formErr)
}

// message переводит ошибку в текст для пользователя.
func message(err error) string {
	for target, text := range userErrors {
		if errors.Is(err, target) {
			return text
		}
	}

	var formErr *service.FormError
	if errors.As(err, &formErr) {
		return "Please correct the highlighted fields."
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if s := apiErr.Summary(); s != "" {
			return s
		}
		return fmt.Sprintf("Request failed with status %d.", apiErr.StatusCode)
	}

	if errors.Is(err, backend.ErrUnavailable) {
		return "The server is unreachable. Please try again."
	}
	return "Something went wrong. Please try again."
}

func statusFor(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return apiErr.StatusCode
		}
	}
	return http.StatusBadGateway
}

// decodeForm разбирает тело формы в структуру dst.
func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}
	if err := h.decoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}
	return nil
}

// decodeMultipart разбирает multipart-форму; dst может быть nil, если нужны только файлы.
func (h *Handler) decodeMultipart(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return fmt.Errorf("parse multipart form: %w", err)
	}
	if dst == nil {
		return nil
	}
	if err := h.decoder.Decode(dst, r.MultipartForm.Value); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}
	return nil
}

// upload читает файл из поля field. Отсутствующий файл даёт nil без ошибки.
func upload(r *http.Request, field string) (*model.Upload, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &model.Upload{
		Field:       field,
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// values собирает введённые значения формы для повторной отрисовки, пропуская пароли.
func values(form url.Values, names ...string) map[string]string {
	res := make(map[string]string, len(names))
	for _, n := range names {
		res[n] = strings.TrimSpace(form.Get(n))
	}
	return res
}

func homeFor(role model.Role) string {
	if role.IsAdmin() {
		return "/dashboard/admin"
	}
	return "/dashboard/user"
}
