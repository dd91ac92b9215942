package service

import (
	"math"
	"net/url"
	"strconv"
)

// Ethics is attached to every scored page. Results are advisory only.
type Ethics struct {
	AutoApprove                bool   `json:"auto_approve"`
	DoctorConfirmationRequired bool   `json:"doctor_confirmation_required"`
	Message                    string `json:"message"`
}

// DefaultEthics is the notice returned with match results.
var DefaultEthics = Ethics{
	AutoApprove:                false,
	DoctorConfirmationRequired: true,
	Message:                    "LifeLink assists, doctors decide.",
}

// PageLink is one entry of the numbered page navigation.
type PageLink struct {
	URL    *string `json:"url"`
	Label  string  `json:"label"`
	Active bool    `json:"active"`
}

// Page is a length-aware page envelope. From and To are nil for an empty page.
type Page[T any] struct {
	CurrentPage  int        `json:"current_page"`
	Data         []T        `json:"data"`
	FirstPageURL string     `json:"first_page_url"`
	From         *int       `json:"from"`
	LastPage     int        `json:"last_page"`
	LastPageURL  string     `json:"last_page_url"`
	Links        []PageLink `json:"links,omitempty"`
	NextPageURL  *string    `json:"next_page_url"`
	Path         string     `json:"path"`
	PerPage      int        `json:"per_page"`
	PrevPageURL  *string    `json:"prev_page_url"`
	To           *int       `json:"to"`
	Total        int        `json:"total"`
	Ethics       *Ethics    `json:"ethics,omitempty"`
}

// Paging holds normalized page parameters.
type Paging struct {
	Page    int
	PerPage int
}

// Offset returns the row offset of the page.
func (p Paging) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// NormalizePaging applies the per-page default and cap, and bounds the page so the row
// offset stays within int32.
func NormalizePaging(page, perPage, defaultPerPage, maxPerPage int) Paging {
	if defaultPerPage < 1 {
		defaultPerPage = 10
	}
	if maxPerPage < defaultPerPage {
		maxPerPage = defaultPerPage
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt32 / maxPerPage; page > maxPage {
		page = maxPage
	}
	return Paging{Page: page, PerPage: perPage}
}

// NewPage builds the envelope for items fetched at paging out of total rows.
// path is the request URL without query string; page links append ?page=N.
func NewPage[T any](items []T, total int, paging Paging, path string) *Page[T] {
	if items == nil {
		items = []T{}
	}

	lastPage := 1
	if total > 0 {
		lastPage = (total + paging.PerPage - 1) / paging.PerPage
	}

	p := &Page[T]{
		CurrentPage:  paging.Page,
		Data:         items,
		FirstPageURL: pageURL(path, 1),
		LastPage:     lastPage,
		LastPageURL:  pageURL(path, lastPage),
		Path:         path,
		PerPage:      paging.PerPage,
		Total:        total,
	}

	if len(items) > 0 {
		from := paging.Offset() + 1
		to := paging.Offset() + len(items)
		p.From = &from
		p.To = &to
	}
	if paging.Page < lastPage {
		next := pageURL(path, paging.Page+1)
		p.NextPageURL = &next
	}
	if paging.Page > 1 {
		prev := pageURL(path, paging.Page-1)
		p.PrevPageURL = &prev
	}

	return p
}

// WithLinks adds numbered navigation links to the page.
func (p *Page[T]) WithLinks() *Page[T] {
	links := make([]PageLink, 0, p.LastPage+2)
	links = append(links, PageLink{URL: p.PrevPageURL, Label: "&laquo; Previous"})
	for i := 1; i <= p.LastPage; i++ {
		u := pageURL(p.Path, i)
		links = append(links, PageLink{URL: &u, Label: strconv.Itoa(i), Active: i == p.CurrentPage})
	}
	links = append(links, PageLink{URL: p.NextPageURL, Label: "Next &raquo;"})
	p.Links = links
	return p
}

func pageURL(path string, page int) string {
	return path + "?" + url.Values{"page": {strconv.Itoa(page)}}.Encode()
}
