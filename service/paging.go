package service

import (
	"context"
	"math"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/util"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 9
	MaxPageSize     = 50

	// maxPage keeps (page-1)*limit within int64.
	maxPage = math.MaxInt64 / MaxPageSize
)

// ListQuery holds the paging, sorting and search parameters shared by every
// list endpoint.
type ListQuery struct {
	Page      int64  `schema:"page"`
	Limit     int64  `schema:"limit"`
	Search    string `schema:"search"`
	SortBy    string `schema:"sortBy"`
	SortOrder string `schema:"sortOrder"`
}

type Pagination struct {
	CurrentPage    int64 `json:"currentPage"`
	TotalPages     int64 `json:"totalPages"`
	Total          int64 `json:"total"`
	ResultsPerPage int64 `json:"resultsPerPage"`
	HasNextPage    bool  `json:"hasNextPage"`
}

type sortSpec struct {
	fields      []string
	fallback    string
	defaultDesc bool
}

type pager struct {
	page  int64
	limit int64
	opts  entity.ListOptions
}

func (q ListQuery) pager(sort sortSpec) pager {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	field := q.SortBy
	if !slices.Contains(sort.fields, field) {
		field = sort.fallback
	}

	desc := sort.defaultDesc
	switch q.SortOrder {
	case "asc":
		desc = false
	case "desc":
		desc = true
	}

	return pager{
		page:  page,
		limit: limit,
		opts: entity.ListOptions{
			Skip:      (page - 1) * limit,
			Limit:     limit,
			SortField: field,
			SortDesc:  desc,
		},
	}
}

func (p pager) pagination(total int64) Pagination {
	totalPages := util.TotalPages(total, p.limit)
	return Pagination{
		CurrentPage:    p.page,
		TotalPages:     totalPages,
		Total:          total,
		ResultsPerPage: p.limit,
		HasNextPage:    p.page < totalPages,
	}
}

// findPage runs the page query and the count concurrently.
func findPage[T any](ctx context.Context, find func(ctx context.Context) ([]T, error), count func(ctx context.Context) (int64, error)) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = find(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = count(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if items == nil {
		items = []T{}
	}
	return items, total, nil
}
