package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/ration-portal/internal/model"
)

func strPtr(s string) *string {
	return &s
}

func TestFromLinks(t *testing.T) {
	links := []Link{
		{URL: nil, Label: "&laquo; Previous"},
		{URL: strPtr("http://backend/api/products?page=1"), Label: "1"},
		{URL: strPtr("http://backend/api/products?page=2"), Label: "2", Active: true},
		{URL: strPtr("http://backend/api/products?page=3"), Label: "3"},
		{URL: strPtr("http://backend/api/products?page=3"), Label: "Next &raquo;"},
	}

	got := FromLinks(links)

	want := []model.PageLink{
		{Page: 1, Label: "1"},
		{Page: 2, Label: "2", Active: true},
		{Page: 3, Label: "3"},
		{Page: 3, Label: "»"},
	}
	assert.Equal(t, want, got)

	for _, l := range got {
		assert.NotZero(t, l.Page, "every rendered link must have a page")
	}
}

func TestFromLinks_URLWithoutPageDefaultsToFirst(t *testing.T) {
	got := FromLinks([]Link{{URL: strPtr("http://backend/api/orders"), Label: "1", Active: true}})
	assert.Equal(t, []model.PageLink{{Page: 1, Label: "1", Active: true}}, got)
}

func TestFromLinks_SkipsUnparsableURL(t *testing.T) {
	got := FromLinks([]Link{
		{URL: strPtr("http://backend/api/orders/%zz?page=2"), Label: "2"},
		{URL: strPtr("http://backend/api/orders?page=3"), Label: "3"},
	})
	assert.Equal(t, []model.PageLink{{Page: 3, Label: "3"}}, got)
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		current int
		last    int
		want    []model.PageLink
	}{
		{
			name:    "single page",
			current: 1,
			last:    1,
			want:    nil,
		},
		{
			name:    "middle page",
			current: 2,
			last:    3,
			want: []model.PageLink{
				{Page: 1, Label: "«"},
				{Page: 1, Label: "1"},
				{Page: 2, Label: "2", Active: true},
				{Page: 3, Label: "3"},
				{Page: 3, Label: "»"},
			},
		},
		{
			name:    "current beyond last",
			current: 9,
			last:    2,
			want: []model.PageLink{
				{Page: 1, Label: "«"},
				{Page: 1, Label: "1"},
				{Page: 2, Label: "2", Active: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.current, tt.last))
		})
	}
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 1, ParsePage(""))
	assert.Equal(t, 1, ParsePage("abc"))
	assert.Equal(t, 1, ParsePage("-4"))
	assert.Equal(t, 7, ParsePage(" 7 "))
}
