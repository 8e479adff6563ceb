package postgres

import (
	"context"
	"fmt"
	"strings"

	"carpool/internal/repository"
)

// Owner clauses for listings. $1 is always the owner's user ID.
const (
	ownedByPassenger = `passenger_id = $1`
	ownedByDriver    = `trip_id IN (SELECT id FROM trips WHERE driver_id = $1)`
)

// listQuery builds the page and count statements for a listing over table.
// trip_id is compared as text so a malformed ID matches nothing instead of
// failing the cast.
func listQuery(table, columns, owner, ownerID string, f repository.ListFilter) (pageSQL, countSQL string, pageArgs, countArgs []any) {
	where := []string{owner}
	args := []any{ownerID}

	if f.TripID != "" {
		args = append(args, f.TripID)
		where = append(where, fmt.Sprintf("trip_id::text = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")
	countSQL = `SELECT count(*) FROM ` + table + ` WHERE ` + cond
	countArgs = args

	pageSQL = `SELECT ` + columns + ` FROM ` + table + ` WHERE ` + cond + ` ORDER BY created_at DESC, id`
	pageArgs = args
	if f.Limit > 0 {
		pageArgs = append(pageArgs[:len(args):len(args)], f.Limit, max(f.Offset, 0))
		pageSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	} else if f.Offset > 0 {
		pageArgs = append(pageArgs[:len(args):len(args)], f.Offset)
		pageSQL += fmt.Sprintf(" OFFSET $%d", len(args)+1)
	}

	return pageSQL, countSQL, pageArgs, countArgs
}

// listRows runs a listing built by listQuery, scanning each row with scan.
func listRows[T any](ctx context.Context, q Querier, table, columns, owner, ownerID string, f repository.ListFilter, scan func(scanner) (*T, error)) ([]*T, int, error) {
	pageSQL, countSQL, pageArgs, countArgs := listQuery(table, columns, owner, ownerID, f)

	var total int
	if err := q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, translateError(err)
	}

	rows, err := q.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer rows.Close()

	items := []*T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}
