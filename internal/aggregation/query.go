package aggregation

import (
	"sort"
)

// Row is one per-user count. DateTime is set for hourly rows only.
type Row struct {
	DateTime     *string `json:"dateTime,omitempty"`
	User         string  `json:"user"`
	Transactions uint32  `json:"transactions"`
}

// Page is a query result. Page 0 carries only PageCount.
type Page struct {
	Results   []Row  `json:"results"`
	PageCount uint32 `json:"pageCount"`
}

// Query returns page p of the rows for day. Rows are ordered by hour, then
// by user.
func (ix *Index) Query(g Grouping, day Day, page int) Page {
	var rows []Row
	switch g {
	case Daily:
		rows = appendRows(rows, ix.daily[day], nil)
	case Hourly:
		for _, h := range ix.hours {
			if h.Day != day {
				continue
			}
			dt := h.DateTime()
			rows = appendRows(rows, ix.hourly[h], &dt)
		}
	}
	return extractPage(rows, page)
}

func appendRows(rows []Row, c counts, dateTime *string) []Row {
	users := make([]string, 0, len(c))
	for u := range c {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		rows = append(rows, Row{DateTime: dateTime, User: u, Transactions: c[u]})
	}
	return rows
}

func extractPage(rows []Row, page int) Page {
	out := Page{Results: []Row{}}
	if len(rows) == 0 {
		return out
	}
	out.PageCount = uint32((len(rows)-1)/PageSize + 1)
	if page <= 0 {
		return out
	}
	start := (page - 1) * PageSize
	if start >= len(rows) {
		return out
	}
	end := min(start+PageSize, len(rows))
	out.Results = rows[start:end]
	return out
}
