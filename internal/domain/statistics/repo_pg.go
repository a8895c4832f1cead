package statistics

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phc/phc/internal/domain/program"
	"github.com/phc/phc/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// advisoryClassID namespaces this module's advisory locks within the
// database.
const advisoryClassID = 7231

func scopeLockKey(disease program.DiseaseType) int32 {
	h := fnv.New32a()
	h.Write([]byte("stats-rebuild:" + string(disease)))
	return int32(h.Sum32())
}

// -- Cache repository --

type cacheRepoPG struct {
	pool *pgxpool.Pool
}

func NewCacheRepo(pool *pgxpool.Pool) CacheRepository {
	return &cacheRepoPG{pool: pool}
}

func (r *cacheRepoPG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

const cacheColumns = `id, clinic_id, disease_type, year, month,
	male_count, female_count, total_count, standard_count, non_standard_count,
	standard_percentage, updated_at`

func (r *cacheRepoPG) GetForUpdate(ctx context.Context, b Bucket) (*MonthlyEntry, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("GetForUpdate requires a transaction on the context")
	}

	// Lazily materialize the bucket, then lock it. ON CONFLICT DO NOTHING
	// keeps concurrent first-writers from failing; both then contend on the
	// row lock below.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO monthly_statistics_cache (id, clinic_id, disease_type, year, month)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (clinic_id, disease_type, year, month) DO NOTHING`,
		uuid.New(), b.ClinicID, b.Disease, b.Year, b.Month,
	)
	if err != nil {
		return nil, fmt.Errorf("materialize cache bucket %s: %w", b, err)
	}

	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+cacheColumns+` FROM monthly_statistics_cache
		WHERE clinic_id = $1 AND disease_type = $2 AND year = $3 AND month = $4
		FOR UPDATE`,
		b.ClinicID, b.Disease, b.Year, b.Month,
	))
}

func (r *cacheRepoPG) Save(ctx context.Context, e *MonthlyEntry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE monthly_statistics_cache SET
			male_count = $2, female_count = $3, total_count = $4,
			standard_count = $5, non_standard_count = $6,
			standard_percentage = $7, updated_at = NOW()
		WHERE id = $1`,
		e.ID, e.MaleCount, e.FemaleCount, e.TotalCount,
		e.StandardCount, e.NonStandardCount, e.StandardPercentage,
	)
	if err != nil {
		return fmt.Errorf("save cache entry %s: %w", e.Bucket(), err)
	}
	return nil
}

func (r *cacheRepoPG) Get(ctx context.Context, b Bucket) (*MonthlyEntry, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+cacheColumns+` FROM monthly_statistics_cache
		WHERE clinic_id = $1 AND disease_type = $2 AND year = $3 AND month = $4`,
		b.ClinicID, b.Disease, b.Year, b.Month,
	))
}

func (r *cacheRepoPG) ListYear(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) ([]*MonthlyEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cacheColumns+` FROM monthly_statistics_cache
		WHERE clinic_id = $1 AND disease_type = $2 AND year = $3
		ORDER BY month`,
		clinicID, disease, year,
	)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*MonthlyEntry
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *cacheRepoPG) Upsert(ctx context.Context, e *MonthlyEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO monthly_statistics_cache (
			id, clinic_id, disease_type, year, month,
			male_count, female_count, total_count,
			standard_count, non_standard_count, standard_percentage
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (clinic_id, disease_type, year, month) DO UPDATE SET
			male_count = EXCLUDED.male_count,
			female_count = EXCLUDED.female_count,
			total_count = EXCLUDED.total_count,
			standard_count = EXCLUDED.standard_count,
			non_standard_count = EXCLUDED.non_standard_count,
			standard_percentage = EXCLUDED.standard_percentage,
			updated_at = NOW()`,
		e.ID, e.ClinicID, e.Disease, e.Year, e.Month,
		e.MaleCount, e.FemaleCount, e.TotalCount,
		e.StandardCount, e.NonStandardCount, e.StandardPercentage,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", e.Bucket(), err)
	}
	return nil
}

func (r *cacheRepoPG) DeleteBucket(ctx context.Context, b Bucket) error {
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM monthly_statistics_cache
		WHERE clinic_id = $1 AND disease_type = $2 AND year = $3 AND month = $4`,
		b.ClinicID, b.Disease, b.Year, b.Month,
	)
	if err != nil {
		return fmt.Errorf("delete cache bucket %s: %w", b, err)
	}
	return nil
}

func (r *cacheRepoPG) DeleteScope(ctx context.Context, disease program.DiseaseType, year *int) error {
	var err error
	if year != nil {
		_, err = r.conn(ctx).Exec(ctx,
			`DELETE FROM monthly_statistics_cache WHERE disease_type = $1 AND year = $2`,
			disease, *year)
	} else {
		_, err = r.conn(ctx).Exec(ctx,
			`DELETE FROM monthly_statistics_cache WHERE disease_type = $1`, disease)
	}
	if err != nil {
		return fmt.Errorf("delete cache scope %s: %w", disease, err)
	}
	return nil
}

func (r *cacheRepoPG) LockScopeShared(ctx context.Context, disease program.DiseaseType) error {
	if db.TxFromContext(ctx) == nil {
		return fmt.Errorf("LockScopeShared requires a transaction on the context")
	}
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock_shared($1, $2)`, advisoryClassID, scopeLockKey(disease))
	if err != nil {
		return fmt.Errorf("acquire shared scope lock for %s: %w", disease, err)
	}
	return nil
}

// LockScopeExclusive pins a pool connection for the session lock so the
// unlock runs against the same backend.
func (r *cacheRepoPG) LockScopeExclusive(ctx context.Context, disease program.DiseaseType) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for scope lock: %w", err)
	}

	key := scopeLockKey(disease)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1, $2)`, advisoryClassID, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire exclusive scope lock for %s: %w", disease, err)
	}

	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1, $2)`, advisoryClassID, key)
		conn.Release()
	}
	return release, nil
}

func (r *cacheRepoPG) scan(row pgx.Row) (*MonthlyEntry, error) {
	var e MonthlyEntry
	err := row.Scan(
		&e.ID, &e.ClinicID, &e.Disease, &e.Year, &e.Month,
		&e.MaleCount, &e.FemaleCount, &e.TotalCount,
		&e.StandardCount, &e.NonStandardCount,
		&e.StandardPercentage, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, program.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	return &e, nil
}

// -- Examination source --

type examSourcePG struct {
	pool *pgxpool.Pool
}

func NewExamSource(pool *pgxpool.Pool) ExaminationSource {
	return &examSourcePG{pool: pool}
}

func (r *examSourcePG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

func sourceTable(disease program.DiseaseType) (string, string, error) {
	switch disease {
	case program.DiseaseHT:
		return "ht_examination", `systolic, diastolic`, nil
	case program.DiseaseDM:
		return "dm_examination", `examination_type, result`, nil
	}
	return "", "", fmt.Errorf("unknown disease type: %q", disease)
}

func (r *examSourcePG) FindByPatientYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) ([]program.Visit, error) {
	table, payload, err := sourceTable(disease)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT id, patient_id, clinic_id, examination_date, year, month, %s
		FROM %s WHERE patient_id = $1 AND year = $2
		ORDER BY examination_date`, payload, table),
		patientID, year)
	if err != nil {
		return nil, fmt.Errorf("find %s examinations by patient year: %w", disease, err)
	}
	defer rows.Close()
	return r.scanVisits(rows, disease)
}

func (r *examSourcePG) FindByBucket(ctx context.Context, b Bucket) ([]program.Visit, error) {
	table, payload, err := sourceTable(b.Disease)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT id, patient_id, clinic_id, examination_date, year, month, %s
		FROM %s WHERE clinic_id = $1 AND year = $2 AND month = $3
		ORDER BY examination_date`, payload, table),
		b.ClinicID, b.Year, b.Month)
	if err != nil {
		return nil, fmt.Errorf("find examinations in bucket %s: %w", b, err)
	}
	defer rows.Close()
	return r.scanVisits(rows, b.Disease)
}

func (r *examSourcePG) FindByClinicYear(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) ([]program.Visit, error) {
	table, payload, err := sourceTable(disease)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT id, patient_id, clinic_id, examination_date, year, month, %s
		FROM %s WHERE clinic_id = $1 AND year = $2
		ORDER BY patient_id, examination_date`, payload, table),
		clinicID, year)
	if err != nil {
		return nil, fmt.Errorf("find %s examinations by clinic year: %w", disease, err)
	}
	defer rows.Close()
	return r.scanVisits(rows, disease)
}

func (r *examSourcePG) CountPriorInBucket(ctx context.Context, patientID uuid.UUID, b Bucket, excludeID uuid.UUID) (int, error) {
	table, _, err := sourceTable(b.Disease)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE patient_id = $1 AND clinic_id = $2 AND year = $3 AND month = $4 AND id <> $5`,
		table),
		patientID, b.ClinicID, b.Year, b.Month, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count prior examinations in bucket %s: %w", b, err)
	}
	return count, nil
}

func (r *examSourcePG) ListBuckets(ctx context.Context, disease program.DiseaseType, year *int) ([]Bucket, error) {
	table, _, err := sourceTable(disease)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT clinic_id, year, month FROM %s
		ORDER BY clinic_id, year, month`, table)
	args := []any{}
	if year != nil {
		query = fmt.Sprintf(`
			SELECT DISTINCT clinic_id, year, month FROM %s WHERE year = $1
			ORDER BY clinic_id, year, month`, table)
		args = append(args, *year)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s buckets: %w", disease, err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		b := Bucket{Disease: disease}
		if err := rows.Scan(&b.ClinicID, &b.Year, &b.Month); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (r *examSourcePG) CountDistinctPatients(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) (int, error) {
	table, _, err := sourceTable(disease)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(DISTINCT patient_id) FROM %s WHERE clinic_id = $1 AND year = $2`, table),
		clinicID, year).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct %s patients: %w", disease, err)
	}
	return count, nil
}

func (r *examSourcePG) scanVisits(rows pgx.Rows, disease program.DiseaseType) ([]program.Visit, error) {
	var visits []program.Visit
	for rows.Next() {
		v := program.Visit{Disease: disease}
		var err error
		if disease == program.DiseaseDM {
			err = rows.Scan(&v.ID, &v.PatientID, &v.ClinicID, &v.Date, &v.Year, &v.Month, &v.DMType, &v.Result)
		} else {
			err = rows.Scan(&v.ID, &v.PatientID, &v.ClinicID, &v.Date, &v.Year, &v.Month, &v.Systolic, &v.Diastolic)
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s visit: %w", disease, err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// -- Yearly targets --

type targetRepoPG struct {
	pool *pgxpool.Pool
}

func NewTargetRepo(pool *pgxpool.Pool) TargetRepository {
	return &targetRepoPG{pool: pool}
}

func (r *targetRepoPG) Get(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) (*YearlyTarget, error) {
	var t YearlyTarget
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT clinic_id, disease_type, year, target_count
		FROM yearly_target
		WHERE clinic_id = $1 AND disease_type = $2 AND year = $3`,
		clinicID, disease, year).Scan(&t.ClinicID, &t.Disease, &t.Year, &t.TargetCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, program.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan yearly target: %w", err)
	}
	return &t, nil
}
