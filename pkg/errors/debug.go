package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump is the log-only view of an error. It never reaches API clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	HTTPStatus int      `json:"http_status,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	// database driver detail; PG* for postgres (pgx or lib/pq), SQLite* for
	// local and test runs
	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	SQLiteCode   int    `json:"sqlite_code,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}

	if te := As(err); te != nil {
		meta := MetadataFor(te.Code())
		d.Code = te.Code()
		d.HTTPStatus = meta.HTTPStatus
		d.Retryable = meta.Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.fillDriverDetail(err)
	return d
}

func (d *ErrorDump) fillDriverDetail(err error) {
	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	case errors.As(err, &liteErr):
		d.SQLiteCode = int(liteErr.ExtendedCode)
	}
}
