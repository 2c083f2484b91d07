package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// Orders возвращает страницу заказов текущего сотрудника.
func (c *Client) Orders(ctx context.Context, token string, page int) (*model.Page[model.Order], error) {
	env, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/orders?page=%d", page), token, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(env.Data, wireOrder.toModel)
}

// Order возвращает заказ с позициями.
func (c *Client) Order(ctx context.Context, token string, id int64) (*model.Order, error) {
	env, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/orders/%d", id), token, nil, nil)
	if err != nil {
		return nil, err
	}

	var w wireOrder
	if err := decodeData(env, &w); err != nil {
		return nil, err
	}
	o := w.toModel()
	return &o, nil
}

// EditLastOrder открывает последний заказ для редактирования.
func (c *Client) EditLastOrder(ctx context.Context, token string) (string, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/orders/edit-last-order", token, nil, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// AdminOrders возвращает страницу заказов всех сотрудников.
func (c *Client) AdminOrders(ctx context.Context, token string, page int) (*model.Page[model.Order], error) {
	env, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/admin/orders/all?page=%d", page), token, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(env.Data, wireOrder.toModel)
}
