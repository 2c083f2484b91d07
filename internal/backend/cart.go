package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ration-portal/internal/model"
)

type cartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	ID        int64 `json:"id,omitempty"`
}

type cartRequest struct {
	Products []cartLineRequest `json:"products"`
}

func newCartRequest(lines []model.CartLine) cartRequest {
	req := cartRequest{Products: make([]cartLineRequest, 0, len(lines))}
	for _, l := range lines {
		req.Products = append(req.Products, cartLineRequest{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			ID:        l.LineID,
		})
	}
	return req
}

// GetCart возвращает текущую корзину.
func (c *Client) GetCart(ctx context.Context, token string) (model.Cart, error) {
	env, err := c.doJSON(ctx, http.MethodGet, "/api/cart", token, nil, nil)
	if err != nil {
		return model.Cart{}, err
	}
	return decodeCart(env.Data)
}

// SyncCart отправляет весь набор строк корзины и возвращает пересчитанную бэкендом корзину.
// При ошибке валидации бэкенд может вернуть исправленную корзину, см. CorrectedCart.
func (c *Client) SyncCart(ctx context.Context, token string, lines []model.CartLine) (model.Cart, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/cart/add", token, newCartRequest(lines), nil)
	if err != nil {
		return model.Cart{}, err
	}
	return decodeCart(env.Data)
}

// RemoveCartLine удаляет строку корзины по идентификатору строки.
func (c *Client) RemoveCartLine(ctx context.Context, token string, lineID int64) (model.Cart, error) {
	env, err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/cart/remove/%d", lineID), token, nil, nil)
	if err != nil {
		return model.Cart{}, err
	}
	return decodeCart(env.Data)
}

// ClearCart удаляет все строки корзины.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/cart/clear", token, nil, nil)
	return err
}

// CorrectedCart извлекает корзину, которую бэкенд вернул в поле errors вместе с отказом.
func CorrectedCart(err error) (model.Cart, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return model.Cart{}, false
	}
	return apiErr.CorrectedCart()
}

// CorrectedCart возвращает исправленную бэкендом корзину, если она есть в ответе.
func (e *APIError) CorrectedCart() (model.Cart, bool) {
	if !cartShaped(e.raw) {
		return model.Cart{}, false
	}

	cart, err := decodeCart(e.raw)
	if err != nil {
		return model.Cart{}, false
	}
	return cart, true
}

var cartKeys = []string{"cart_data", "items", "payable_amount"}

func cartShaped(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return false
	}
	if trimmed[0] == '[' {
		return true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return false
	}
	for _, k := range cartKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

type placeOrderLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	ID        int64           `json:"id,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type placeOrderRequest struct {
	Products []placeOrderLine `json:"products"`
}

type placedOrder struct {
	ID flexInt `json:"id"`
}

// PlaceOrder размещает заказ из строк корзины и возвращает идентификатор заказа.
// idempotencyKey защищает от повторного размещения одной и той же корзины.
func (c *Client) PlaceOrder(ctx context.Context, token string, lines []model.CartLine, idempotencyKey string) (int64, error) {
	req := placeOrderRequest{Products: make([]placeOrderLine, 0, len(lines))}
	for _, l := range lines {
		req.Products = append(req.Products, placeOrderLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			ID:        l.LineID,
			UnitPrice: l.UnitPrice,
		})
	}

	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{IdempotencyHeader: idempotencyKey}
	}

	env, err := c.doJSON(ctx, http.MethodPost, "/api/orders/place", token, req, headers)
	if err != nil {
		return 0, err
	}

	var data placedOrder
	if err := decodeData(env, &data); err != nil {
		return 0, err
	}
	if data.ID == 0 {
		return 0, fmt.Errorf("%w: order id missing in response", ErrUnavailable)
	}
	return int64(data.ID), nil
}

// IdempotencyHeader: заголовок ключа идемпотентности размещения заказа.
const IdempotencyHeader = "Idempotency-Key"
