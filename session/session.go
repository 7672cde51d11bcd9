// Package session implements the session-oriented fetch protocol used
// for paginated intraday transaction retrieval, together with the
// server pool and its connectivity prober.
package session

import (
	"context"

	"github.com/marketreplay/go-tick-fetch/models"
)

// PageKind tags one paginated response. A transient failure is a
// distinct value, never an overload of an empty page.
type PageKind int

const (
	// PageRecords carries one non-empty chunk of records.
	PageRecords PageKind = iota
	// PageEnd signals legitimate end of data for the target.
	PageEnd
	// PageTransient signals a transient protocol failure. The attempt
	// must be aborted, not treated as end of data.
	PageTransient
)

// Page is one chunk of a paginated response.
type Page struct {
	Kind    PageKind
	Records []models.Transaction
}

// Session is one open connection to a server. Sessions are not safe
// for concurrent use; each attempt opens and closes its own.
type Session interface {
	// Count returns the number of securities the server knows for a
	// market. Used as the minimal liveness probe.
	Count(market int) (int, error)

	// TransactionPage requests one page of intraday transactions at
	// offset, limited to count records.
	TransactionPage(market int, code string, date, offset, count int) (Page, error)

	Close() error
}

// Dialer opens sessions against server candidates.
type Dialer interface {
	Connect(ctx context.Context, srv models.Server) (Session, error)
}
