// Package diagnostics implements the actor metadata query interface
// (spec §6): a paginated, glob-filterable listing over live activations,
// consumed by tests and by the `silo actor list` CLI subcommand. It is
// in-process only; no HTTP bridge is provided (out of scope per spec §1).
package diagnostics

import (
	"path"
	"sort"

	"github.com/fluxgrid/silo/utils/bag"
)

// ActorInfo describes one live activation for diagnostic purposes.
type ActorInfo struct {
	ActorType   string
	ActorID     string
	SiloID      string
	ActivatedAt int64 // unix nanos, avoids importing time for a query-only view
	IdleSeconds float64
}

// Source is implemented by whatever holds the live activation set (the
// actor.ActivationTable in practice); kept narrow so diagnostics has no
// import-cycle on the actor package's internals.
type Source interface {
	Actors() []ActorInfo
}

// Query selects a filtered, paginated slice of actors.
type Query struct {
	TypeFilter    string // exact match, empty means any type
	IDGlobPattern string // '*' and '?' glob over ActorID, empty means any id
	Page          int    // 1-based
	PageSize      int
}

// Page is the result of a Query (spec §6: "{items, totalCount, pageNumber,
// pageSize, totalPages, hasNext, hasPrev}").
type Page struct {
	Items      []ActorInfo
	TotalCount int
	PageNumber int
	PageSize   int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// List runs q against src, returning one page of matching actors sorted
// by (ActorType, ActorID) for stable pagination.
func List(src Source, q Query) (Page, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 50
	}

	all := src.Actors()
	matched := make([]ActorInfo, 0, len(all))
	for _, a := range all {
		if q.TypeFilter != "" && a.ActorType != q.TypeFilter {
			continue
		}
		if q.IDGlobPattern != "" {
			ok, err := path.Match(q.IDGlobPattern, a.ActorID)
			if err != nil {
				return Page{}, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ActorType != matched[j].ActorType {
			return matched[i].ActorType < matched[j].ActorType
		}
		return matched[i].ActorID < matched[j].ActorID
	})

	total := len(matched)
	totalPages := (total + q.PageSize - 1) / q.PageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (q.Page - 1) * q.PageSize
	end := start + q.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := matched[start:end]
	return Page{
		Items:      items,
		TotalCount: total,
		PageNumber: q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
		HasNext:    q.Page < totalPages,
		HasPrev:    q.Page > 1,
	}, nil
}

// CountByType aggregates live actor counts per actor type (spec §6:
// "aggregation endpoints by type and total counts").
func CountByType(src Source) bag.Bag[string] {
	counts := bag.New[string]()
	for _, a := range src.Actors() {
		counts.Add(a.ActorType)
	}
	return counts
}

// TotalCount returns the overall live activation count.
func TotalCount(src Source) int {
	return len(src.Actors())
}
