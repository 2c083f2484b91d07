package view

import (
	"strings"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// NavLink: пункт бокового меню.
type NavLink struct {
	Label  string
	Href   string
	Active bool
}

var userNav = []NavLink{
	{Label: "Dashboard", Href: "/dashboard/user"},
	{Label: "Orders", Href: "/dashboard/user/orders"},
	{Label: "Order Now", Href: "/dashboard/user/product-list"},
	{Label: "Ration Policy", Href: "/dashboard/user/rashan-policy"},
	{Label: "Update Password", Href: "/dashboard/user/update-password"},
}

var adminNav = []NavLink{
	{Label: "Dashboard", Href: "/dashboard/admin"},
	{Label: "Products", Href: "/dashboard/admin/products"},
	{Label: "Add Product", Href: "/dashboard/admin/products/add"},
	{Label: "Orders", Href: "/dashboard/admin/orders"},
	{Label: "Employees", Href: "/dashboard/admin/all-employees"},
	{Label: "Import Employees", Href: "/dashboard/admin/import-employees"},
	{Label: "Import Products", Href: "/dashboard/admin/import-products"},
	{Label: "Update Password", Href: "/dashboard/admin/update-password"},
}

// Navigation возвращает меню для роли и отмечает пункт, к которому относится current.
// Активным считается самый длинный совпавший префикс, чтобы "Products" не подсвечивался на "Add Product".
func Navigation(role model.Role, current string) []NavLink {
	src := userNav
	if role.IsAdmin() {
		src = adminNav
	}

	links := make([]NavLink, len(src))
	copy(links, src)

	best := -1
	for i, l := range links {
		if current == l.Href || strings.HasPrefix(current, l.Href+"/") {
			if best < 0 || len(l.Href) > len(links[best].Href) {
				best = i
			}
		}
	}
	if best >= 0 {
		links[best].Active = true
	}
	return links
}
