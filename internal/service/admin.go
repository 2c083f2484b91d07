package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/validation"
)

// DashboardSummary возвращает сводку для панели администратора.
func (s *Service) DashboardSummary(ctx context.Context, sess *session.Session) (*model.DashboardSummary, error) {
	return s.backend.DashboardSummary(ctx, sess.Token)
}

// AdminProducts возвращает страницу каталога для администратора.
func (s *Service) AdminProducts(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Product], error) {
	products, err := s.backend.AdminProducts(ctx, sess.Token, page)
	if err != nil {
		return nil, err
	}
	s.withImages(products.Items)
	return products, nil
}

// AdminProduct возвращает товар для формы редактирования.
func (s *Service) AdminProduct(ctx context.Context, sess *session.Session, id int64) (*model.Product, error) {
	p, err := s.backend.AdminProduct(ctx, sess.Token, id)
	if err != nil {
		return nil, err
	}
	p.Image = s.imageURL(p.Image)
	return p, nil
}

// SaveProduct создаёт или обновляет товар. Изображение проверяется до отправки.
func (s *Service) SaveProduct(ctx context.Context, sess *session.Session, form model.ProductForm, image *model.Upload) (string, error) {
	form.Price = strings.TrimSpace(form.Price)
	if err := checkForm(form); err != nil {
		return "", err
	}

	if image != nil {
		if _, err := validation.ProductImage.Check(*image); err != nil {
			return "", &FormError{Fields: map[string][]string{"image": {err.Error()}}}
		}
	}

	return s.backend.StoreProduct(ctx, sess.Token, form, image)
}

// ToggleProductStatus переключает товар между активным и неактивным.
func (s *Service) ToggleProductStatus(ctx context.Context, sess *session.Session, id int64, orderUpdate bool) (string, error) {
	p, err := s.backend.AdminProduct(ctx, sess.Token, id)
	if err != nil {
		return "", err
	}
	p.Status = p.Status.Toggle()
	return s.backend.UpdateProductFields(ctx, sess.Token, *p, orderUpdate)
}

// UpdateProductPrice меняет цену товара. orderUpdate пересчитывает открытые заказы.
func (s *Service) UpdateProductPrice(ctx context.Context, sess *session.Session, id int64, rawPrice string, orderUpdate bool) (string, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(rawPrice))
	if err != nil || !price.IsPositive() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrice, rawPrice)
	}

	p, err := s.backend.AdminProduct(ctx, sess.Token, id)
	if err != nil {
		return "", err
	}
	p.Price = price
	return s.backend.UpdateProductFields(ctx, sess.Token, *p, orderUpdate)
}

// AdminOrders возвращает страницу заказов всех сотрудников.
func (s *Service) AdminOrders(ctx context.Context, sess *session.Session, page int) (*model.Page[model.Order], error) {
	return s.backend.AdminOrders(ctx, sess.Token, page)
}

// AdminOrder возвращает заказ любого сотрудника.
func (s *Service) AdminOrder(ctx context.Context, sess *session.Session, id int64) (*model.Order, error) {
	return s.Order(ctx, sess, id)
}

// Employees возвращает страницу сотрудников с фильтром search.
func (s *Service) Employees(ctx context.Context, sess *session.Session, page int, search string) (*model.Page[model.User], error) {
	return s.backend.AdminUsers(ctx, sess.Token, page, search)
}

// UpdateEmployee сохраняет карточку сотрудника.
func (s *Service) UpdateEmployee(ctx context.Context, sess *session.Session, id int64, form model.EmployeeUpdate) (string, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	form.Probation = strings.ToLower(strings.TrimSpace(form.Probation))
	if err := checkForm(form); err != nil {
		return "", err
	}
	return s.backend.UpdateUser(ctx, sess.Token, id, form)
}

// ImportEmployees загружает файл сотрудников после проверки его типа.
func (s *Service) ImportEmployees(ctx context.Context, sess *session.Session, file model.Upload) (string, error) {
	mime, err := validation.EmployeeImport.Check(file)
	if err != nil {
		return "", &FormError{Fields: map[string][]string{"file": {err.Error()}}}
	}
	if file.ContentType == "" {
		file.ContentType = mime
	}
	return s.backend.ImportEmployees(ctx, sess.Token, file)
}

// ImportProducts загружает файл товаров после проверки его типа.
func (s *Service) ImportProducts(ctx context.Context, sess *session.Session, file model.Upload) (string, error) {
	mime, err := validation.ProductImport.Check(file)
	if err != nil {
		return "", &FormError{Fields: map[string][]string{"excel_file": {err.Error()}}}
	}
	if file.ContentType == "" {
		file.ContentType = mime
	}
	return s.backend.ImportProducts(ctx, sess.Token, file)
}
