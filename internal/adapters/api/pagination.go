package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
)

// defaultPageSize bounds unpaginated listings and is the page size when the
// client does not pick one.
const defaultPageSize = 500

// paginateRRsets lists the domain's RRsets with cursor pagination. Without
// a cursor parameter the full list is returned, unless it exceeds the page
// size, which is a client error pointing at the first page.
func (h *Handler) paginateRRsets(w http.ResponseWriter, r *http.Request, d *domain.Domain) {
	q := r.URL.Query()
	filter := ports.RRsetFilter{}
	if q.Has("subname") {
		s := domain.NormalizeSubname(q.Get("subname"))
		filter.Subname = &s
	}
	if v := q.Get("type"); v != "" {
		t := domain.NormalizeRRsetType(v)
		filter.Type = &t
	}
	size := defaultPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > defaultPageSize {
			h.writeError(w, domain.Ef(domain.KindValidation,
				"limit must be between 1 and %d", defaultPageSize))
			return
		}
		size = n
	}

	if !q.Has("cursor") {
		rows, err := h.rrsets.List(r.Context(), d, filter)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if len(rows) > size {
			w.Header().Set("Link", pageLink(r, "", "first"))
			h.writeError(w, domain.Ef(domain.KindValidation,
				"result size exceeds %d, please use pagination via the cursor parameter", size))
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	if cursor := q.Get("cursor"); cursor != "" {
		id, err := uuid.Parse(cursor)
		if err != nil {
			h.writeError(w, domain.E(domain.KindValidation, "invalid cursor"))
			return
		}
		filter.Cursor = id
	}
	filter.Limit = size + 1
	rows, err := h.rrsets.List(r.Context(), d, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	links := []string{pageLink(r, "", "first")}
	if len(rows) > size {
		rows = rows[:size]
		links = append(links, pageLink(r, rows[size-1].ID.String(), "next"))
	}
	w.Header().Set("Link", strings.Join(links, ", "))
	writeJSON(w, http.StatusOK, rows)
}

// pageLink renders one RFC 8288 link for the request with the cursor
// parameter replaced.
func pageLink(r *http.Request, cursor, rel string) string {
	u := *r.URL
	q := u.Query()
	q.Set("cursor", cursor)
	u.RawQuery = q.Encode()
	return fmt.Sprintf("<%s>; rel=%q", u.String(), rel)
}
