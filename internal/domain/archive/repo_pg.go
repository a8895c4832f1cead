package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phc/phc/internal/domain/program"
	"github.com/phc/phc/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// SetArchived flips is_archived for every examination of the disease in the
// year that does not already carry the target value.
func (r *repoPG) SetArchived(ctx context.Context, disease program.DiseaseType, year int, archived bool) (int64, error) {
	var table string
	switch disease {
	case program.DiseaseHT:
		table = "ht_examination"
	case program.DiseaseDM:
		table = "dm_examination"
	default:
		return 0, fmt.Errorf("unknown disease type: %q", disease)
	}

	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_archived = $2 WHERE year = $1 AND is_archived = NOT $2`, table),
		year, archived,
	)
	if err != nil {
		return 0, fmt.Errorf("set %s archived=%v for year %d: %w", disease, archived, year, err)
	}
	return tag.RowsAffected(), nil
}
