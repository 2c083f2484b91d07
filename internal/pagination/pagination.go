// Package pagination преобразует ссылки пагинатора бэкенда в ссылки страниц портала.
package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// Link описывает ссылку пагинатора в ответе бэкенда.
type Link struct {
	URL    *string `json:"url"`
	Label  string  `json:"label"`
	Active bool    `json:"active"`
}

const (
	labelPrevious = "«"
	labelNext     = "»"
)

// FromLinks возвращает ссылки страниц без ссылок с пустым URL.
// Номер страницы берётся из параметра page, по умолчанию 1.
func FromLinks(links []Link) []model.PageLink {
	res := make([]model.PageLink, 0, len(links))
	for _, l := range links {
		if l.URL == nil || strings.TrimSpace(*l.URL) == "" {
			continue
		}

		page := pageFromURL(*l.URL)
		if page == 0 {
			continue
		}

		res = append(res, model.PageLink{
			Page:   page,
			Label:  label(l.Label),
			Active: l.Active,
		})
	}
	return res
}

// Build строит ссылки для пагинатора без списка links: предыдущая, страницы, следующая.
func Build(current, last int) []model.PageLink {
	if last <= 1 {
		return nil
	}
	if current < 1 {
		current = 1
	}
	if current > last {
		current = last
	}

	res := make([]model.PageLink, 0, last+2)
	if current > 1 {
		res = append(res, model.PageLink{Page: current - 1, Label: labelPrevious})
	}
	for p := 1; p <= last; p++ {
		res = append(res, model.PageLink{Page: p, Label: strconv.Itoa(p), Active: p == current})
	}
	if current < last {
		res = append(res, model.PageLink{Page: current + 1, Label: labelNext})
	}
	return res
}

// ParsePage разбирает номер страницы из строки запроса; некорректные значения дают 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// pageFromURL возвращает 0, если URL не разбирается.
func pageFromURL(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 0
	}
	return ParsePage(u.Query().Get("page"))
}

func label(raw string) string {
	switch {
	case strings.Contains(raw, "Previous"):
		return labelPrevious
	case strings.Contains(raw, "Next"):
		return labelNext
	default:
		return strings.TrimSpace(raw)
	}
}
