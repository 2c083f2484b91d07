// Package view отрисовывает HTML-страницы портала из встроенных шаблонов.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/session"
)

//go:embed templates/*.html static/*
var files embed.FS

const layoutFile = "templates/layout.html"

// Page содержит общие для всех страниц данные и данные конкретной страницы.
type Page struct {
	Title     string
	Path      string
	User      *model.User
	CSRFToken string
	Notices   []session.Notice
	Data      any
}

// Admin сообщает, нужно ли отрисовать административную тему и меню.
func (p Page) Admin() bool {
	return p.User != nil && p.User.Role.IsAdmin()
}

// Nav возвращает пункты бокового меню для роли текущего пользователя.
func (p Page) Nav() []NavLink {
	if p.User == nil {
		return nil
	}
	return Navigation(p.User.Role, p.Path)
}

// Renderer хранит разобранные шаблоны страниц.
type Renderer struct {
	pages  map[string]*template.Template
	logger *zap.Logger
}

// New разбирает все шаблоны страниц вместе с общим макетом.
func New(logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	layout, err := template.New(path.Base(layoutFile)).Funcs(funcs).ParseFS(files, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	names, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		if name == layoutFile {
			continue
		}
		t, err := template.Must(layout.Clone()).ParseFS(files, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[strings.TrimSuffix(path.Base(name), ".html")] = t
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Render отрисовывает страницу name с кодом status.
// Страница собирается в буфер целиком, чтобы ошибка шаблона не оставила полуответ.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, p Page) {
	t, ok := r.pages[name]
	if !ok {
		r.logger.Error("unknown template", zap.String("name", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, path.Base(layoutFile), p); err != nil {
		r.logger.Error("render template", zap.String("name", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Has сообщает, есть ли шаблон страницы с таким именем.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Static отдаёт встроенные стили и изображения.
func Static() http.Handler {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

var funcs = template.FuncMap{
	"money":     Money,
	"date":      formatDate,
	"pageURL":   pageURL,
	"statusTxt": statusText,
	"dict":      dict,
}

// Money форматирует сумму с разделителями разрядов и двумя знаками после запятой.
func Money(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006")
}

// pageURL добавляет номер страницы к пути, сохраняя строку поиска.
func pageURL(base string, page int, search string) string {
	u := fmt.Sprintf("%s?page=%d", base, page)
	if search != "" {
		u += "&search=" + template.URLQueryEscaper(search)
	}
	return u
}

// dict собирает пары ключ-значение в map для передачи во вложенный шаблон.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

func statusText(s model.ProductStatus) string {
	if s == model.ProductActive {
		return "Active"
	}
	return "Inactive"
}
