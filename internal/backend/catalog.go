package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// ImageField: имя поля изображения товара в multipart-запросе.
const ImageField = "image"

// ProductImportField: имя поля файла импорта товаров.
const ProductImportField = "excel_file"

// Products возвращает страницу каталога, доступного сотруднику.
func (c *Client) Products(ctx context.Context, token string, page int) (*model.Page[model.Product], error) {
	return c.productPage(ctx, "/api/products", token, page)
}

// AdminProducts возвращает страницу каталога для администратора.
func (c *Client) AdminProducts(ctx context.Context, token string, page int) (*model.Page[model.Product], error) {
	return c.productPage(ctx, "/api/admin/products", token, page)
}

func (c *Client) productPage(ctx context.Context, path, token string, page int) (*model.Page[model.Product], error) {
	env, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s?page=%d", path, page), token, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(env.Data, wireProduct.toModel)
}

// AdminProduct возвращает товар по идентификатору.
func (c *Client) AdminProduct(ctx context.Context, token string, id int64) (*model.Product, error) {
	env, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/admin/products/%d", id), token, nil, nil)
	if err != nil {
		return nil, err
	}

	var w wireProduct
	if err := decodeData(env, &w); err != nil {
		return nil, err
	}
	p := w.toModel()
	return &p, nil
}

// StoreProduct создаёт товар или обновляет существующий, если задан form.ID.
// Изображение необязательно.
func (c *Client) StoreProduct(ctx context.Context, token string, form model.ProductForm, image *model.Upload) (string, error) {
	fields := []formField{
		{name: "name", value: strings.TrimSpace(form.Name)},
		{name: "detail", value: strings.TrimSpace(form.Detail)},
		{name: "price", value: strings.TrimSpace(form.Price)},
		{name: "measure", value: strings.TrimSpace(form.Measure)},
		{name: "type", value: strings.TrimSpace(form.Type)},
	}
	if b := strings.TrimSpace(form.Brand); b != "" {
		fields = append(fields, formField{name: "brand", value: b})
	}
	if form.ID > 0 {
		fields = append(fields, formField{name: "id", value: strconv.FormatInt(form.ID, 10)})
	}

	var files []model.Upload
	if image != nil {
		img := *image
		img.Field = ImageField
		files = append(files, img)
	}

	env, err := c.doMultipart(ctx, "/api/admin/store-products", token, fields, files...)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

type productFieldsRequest struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Detail      string              `json:"detail"`
	Price       string              `json:"price"`
	Measure     string              `json:"measure"`
	Type        string              `json:"type"`
	Status      model.ProductStatus `json:"status"`
	OrderUpdate int                 `json:"order_update"`
}

// UpdateProductFields заменяет поля товара целиком. orderUpdate просит бэкенд
// пересчитать открытые заказы с этим товаром.
func (c *Client) UpdateProductFields(ctx context.Context, token string, p model.Product, orderUpdate bool) (string, error) {
	req := productFieldsRequest{
		ID:      p.ID,
		Name:    p.Name,
		Detail:  p.Detail,
		Price:   p.Price.String(),
		Measure: p.Measure,
		Type:    p.Type,
		Status:  p.Status,
	}
	if orderUpdate {
		req.OrderUpdate = 1
	}

	env, err := c.doJSON(ctx, http.MethodPost, "/api/admin/store-products", token, req, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// ImportProducts загружает файл с товарами.
func (c *Client) ImportProducts(ctx context.Context, token string, file model.Upload) (string, error) {
	file.Field = ProductImportField
	env, err := c.doMultipart(ctx, "/api/admin/product/import", token, nil, file)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}
