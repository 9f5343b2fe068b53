package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY protocol.
// q may be a pool or an open transaction.
func CopyFrom(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := q.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s: wrote %d of %d rows", table, n, len(rows))
	}

	return n, nil
}
