package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// EmployeeImportField: имя поля файла импорта сотрудников.
const EmployeeImportField = "file"

// AdminUsers возвращает страницу сотрудников, search фильтрует по имени или почте.
func (c *Client) AdminUsers(ctx context.Context, token string, page int, search string) (*model.Page[model.User], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if s := strings.TrimSpace(search); s != "" {
		q.Set("search", s)
	}

	env, err := c.doJSON(ctx, http.MethodGet, "/api/admin/users/all?"+q.Encode(), token, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(env.Data, wireUser.toModel)
}

// UpdateUser сохраняет изменения карточки сотрудника.
func (c *Client) UpdateUser(ctx context.Context, token string, id int64, form model.EmployeeUpdate) (string, error) {
	env, err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/admin/users-update/%d", id), token, form, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// ImportEmployees загружает файл со списком сотрудников.
func (c *Client) ImportEmployees(ctx context.Context, token string, file model.Upload) (string, error) {
	file.Field = EmployeeImportField
	env, err := c.doMultipart(ctx, "/api/admin/employees/import", token, nil, file)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

type wireRecentOrder struct {
	OrderNo    flexString `json:"order_no"`
	UserName   string     `json:"user_name"`
	GrandTotal money      `json:"grand_total"`
	Discount   money      `json:"discount"`
}

type wireTopUser struct {
	EmployeeName string `json:"employee_name"`
	GrandTotal   money  `json:"grand_total"`
}

type wireMonthTotal struct {
	Month      string `json:"month"`
	GrandTotal money  `json:"grand_total"`
}

type wireDashboard struct {
	TotalUsers              flexInt           `json:"total_users"`
	EmployeeRationThisMonth money             `json:"employee_ration_this_month"`
	EmployeeCashThisMonth   money             `json:"employee_cash_this_month"`
	RecentOrders            []wireRecentOrder `json:"recent_orders"`
	TopUsers                []wireTopUser     `json:"top_users"`
	MonthWiseRation         []wireMonthTotal  `json:"month_wise_ration"`
}

// DashboardSummary возвращает сводку для панели администратора.
func (c *Client) DashboardSummary(ctx context.Context, token string) (*model.DashboardSummary, error) {
	env, err := c.doJSON(ctx, http.MethodGet, "/api/dashboard-summary", token, nil, nil)
	if err != nil {
		return nil, err
	}

	var w wireDashboard
	if err := decodeData(env, &w); err != nil {
		return nil, err
	}

	s := &model.DashboardSummary{
		TotalUsers:              int(w.TotalUsers),
		EmployeeRationThisMonth: w.EmployeeRationThisMonth.dec(),
		EmployeeCashThisMonth:   w.EmployeeCashThisMonth.dec(),
		RecentOrders:            make([]model.RecentOrder, 0, len(w.RecentOrders)),
		TopUsers:                make([]model.TopUser, 0, len(w.TopUsers)),
		MonthWiseRation:         make([]model.MonthTotal, 0, len(w.MonthWiseRation)),
	}
	for _, o := range w.RecentOrders {
		s.RecentOrders = append(s.RecentOrders, model.RecentOrder{
			OrderNo:    string(o.OrderNo),
			UserName:   o.UserName,
			GrandTotal: o.GrandTotal.dec(),
			Discount:   o.Discount.dec(),
		})
	}
	for _, u := range w.TopUsers {
		s.TopUsers = append(s.TopUsers, model.TopUser{EmployeeName: u.EmployeeName, GrandTotal: u.GrandTotal.dec()})
	}
	for _, m := range w.MonthWiseRation {
		s.MonthWiseRation = append(s.MonthWiseRation, model.MonthTotal{Month: m.Month, GrandTotal: m.GrandTotal.dec()})
	}
	return s, nil
}
