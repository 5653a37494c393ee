// Package records implements the character operations on top of a dataset
// store: paginated listing, search, single-row update and delete.
//
// Every operation loads a fresh snapshot under the store's access guard. No
// state is kept between calls.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/chardb/internal/dataset"
)

var (
	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrRecordNotFound is returned when no record has the requested id.
	ErrRecordNotFound = errors.New("record not found")
)

// Pagination defaults.
const (
	DefaultPage       = 1
	DefaultPerPage    = 10
	DefaultMaxPerPage = 100
)

// Op names an operation for observers.
type Op string

// Operations reported to observers.
const (
	OpList      Op = "list"
	OpSearch    Op = "search"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpNormalize Op = "normalize"
)

// Observer is notified when an operation completes.
type Observer interface {
	Observe(ctx context.Context, op Op, d time.Duration, err error)
}

// Page selects a window of records. Both fields are at least 1.
type Page struct {
	Page    int
	PerPage int
}

// ParsePage parses raw page and per_page query values. Empty values take the
// defaults; values below 1 are raised to 1.
func ParsePage(page, perPage string) (Page, error) {
	p := Page{Page: DefaultPage, PerPage: DefaultPerPage}
	if s := strings.TrimSpace(page); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Page{}, fmt.Errorf("%w: page must be an integer, got %q", ErrValidation, page)
		}
		p.Page = max(v, 1)
	}
	if s := strings.TrimSpace(perPage); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Page{}, fmt.Errorf("%w: per_page must be an integer, got %q", ErrValidation, perPage)
		}
		p.PerPage = max(v, 1)
	}
	return p, nil
}

// Meta describes a listing window.
type Meta struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// Query is a search request. At least one field must be set.
type Query struct {
	FirstName string
	LastName  string
}

// Service runs record operations against a dataset store.
type Service struct {
	store     *dataset.Store
	observers []Observer

	// MaxPerPage caps Page.PerPage in List. Zero disables the cap.
	MaxPerPage int
}

// NewService returns a Service on store.
func NewService(store *dataset.Store, observers ...Observer) *Service {
	return &Service{
		store:      store,
		observers:  observers,
		MaxPerPage: DefaultMaxPerPage,
	}
}

// Store returns the underlying store.
func (s *Service) Store() *dataset.Store {
	return s.store
}

// List returns the records in the requested window, in file order.
func (s *Service) List(ctx context.Context, p Page) (out []dataset.Record, meta Meta, err error) {
	defer s.observe(ctx, OpList, time.Now(), &err)
	p.Page = max(p.Page, 1)
	p.PerPage = max(p.PerPage, 1)
	if s.MaxPerPage > 0 {
		p.PerPage = min(p.PerPage, s.MaxPerPage)
	}
	err = s.store.View(ctx, func(d *dataset.Dataset) error {
		total := d.Len()
		pages := total / p.PerPage
		if total%p.PerPage != 0 {
			pages++
		}
		meta = Meta{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      total,
			TotalPages: pages,
		}
		out = []dataset.Record{}
		// Compare before multiplying; page and per_page can be as large as
		// math.MaxInt.
		if p.Page <= pages {
			start := (p.Page - 1) * p.PerPage
			out = d.Records[start : start+min(p.PerPage, total-start)]
		}
		return nil
	})
	if err != nil {
		return nil, Meta{}, err
	}
	return out, meta, nil
}

// Search returns every record matching all non-empty fields of q. Matching is
// a case-insensitive substring test.
func (s *Service) Search(ctx context.Context, q Query) (out []dataset.Record, err error) {
	defer s.observe(ctx, OpSearch, time.Now(), &err)
	if q.FirstName == "" && q.LastName == "" {
		return nil, fmt.Errorf("%w: provide first_name or last_name", ErrValidation)
	}
	first := strings.ToLower(q.FirstName)
	last := strings.ToLower(q.LastName)
	err = s.store.View(ctx, func(d *dataset.Dataset) error {
		out = []dataset.Record{}
		for _, r := range d.Records {
			if first != "" && !strings.Contains(strings.ToLower(r[dataset.ColumnFirstName]), first) {
				continue
			}
			if last != "" && !strings.Contains(strings.ToLower(r[dataset.ColumnLastName]), last) {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites the fields of record id named in patch and persists the
// dataset. Keys that are not columns and the id key are ignored. The dataset
// is saved even when nothing changed.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) (out dataset.Record, err error) {
	defer s.observe(ctx, OpUpdate, time.Now(), &err)
	err = s.store.Update(ctx, func(d *dataset.Dataset) error {
		r, ok := d.Get(id)
		if !ok {
			return fmt.Errorf("%w: %q", ErrRecordNotFound, id)
		}
		for k, v := range patch {
			if k == dataset.ColumnID || !d.HasColumn(k) {
				continue
			}
			r[k] = ToText(v)
		}
		out = r.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes record id and persists the dataset.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer s.observe(ctx, OpDelete, time.Now(), &err)
	return s.store.Update(ctx, func(d *dataset.Dataset) error {
		if !d.Remove(id) {
			return fmt.Errorf("%w: %q", ErrRecordNotFound, id)
		}
		return nil
	})
}

// Normalize loads and saves the dataset, persisting repaired ids. It returns
// the number of records kept.
func (s *Service) Normalize(ctx context.Context) (n int, err error) {
	defer s.observe(ctx, OpNormalize, time.Now(), &err)
	err = s.store.Update(ctx, func(d *dataset.Dataset) error {
		n = d.Len()
		return nil
	})
	return n, err
}

func (s *Service) observe(ctx context.Context, op Op, start time.Time, err *error) {
	if len(s.observers) == 0 {
		return
	}
	d := time.Since(start)
	for _, o := range s.observers {
		o.Observe(ctx, op, d, *err)
	}
}

// ToText converts a decoded JSON value to its cell text.
//
// Strings are kept as is, numbers use their JSON text, null becomes the empty
// string and objects or arrays are re-encoded as compact JSON.
func ToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
