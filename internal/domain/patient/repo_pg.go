package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
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

// queryable abstracts pgxpool.Pool and pgx.Tx so repository methods join an
// ambient transaction when one is present on the context.
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

const patientColumns = `id, clinic_id, name, nik, gender, birth_date, ht_years, dm_years, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Gender == "" {
		p.Gender = program.GenderUnknown
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, clinic_id, name, nik, gender, birth_date, ht_years, dm_years)
		VALUES ($1, $2, $3, $4, $5, $6, '{}', '{}')`,
		p.ID, p.ClinicID, p.Name, p.NIK, p.Gender, p.BirthDate,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient WHERE clinic_id = $1`, clinicID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientColumns+` FROM patient WHERE clinic_id = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		clinicID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (r *repoPG) Gender(ctx context.Context, id uuid.UUID) (program.Gender, error) {
	var g program.Gender
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT gender FROM patient WHERE id = $1`, id).Scan(&g)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("patient %s: %w", id, program.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query patient gender: %w", err)
	}
	if g == "" {
		g = program.GenderUnknown
	}
	return g, nil
}

// AddYear appends year to the disease's year set. The guard in the WHERE
// clause makes the operation idempotent: a year already present leaves the
// row untouched.
func (r *repoPG) AddYear(ctx context.Context, id uuid.UUID, disease program.DiseaseType, year int) error {
	col, err := yearColumn(disease)
	if err != nil {
		return err
	}

	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE patient
		SET %[1]s = array_append(%[1]s, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(%[1]s))`, col),
		id, year,
	)
	if err != nil {
		return fmt.Errorf("add %s year: %w", disease, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the year is already tracked, or the patient is missing.
		// Distinguish the two: a dangling reference must surface.
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM patient WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check patient exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("patient %s: %w", id, program.ErrNotFound)
		}
	}
	return nil
}

// RemoveYear removes year from the disease's year set. Removing an absent
// year is a no-op.
func (r *repoPG) RemoveYear(ctx context.Context, id uuid.UUID, disease program.DiseaseType, year int) error {
	col, err := yearColumn(disease)
	if err != nil {
		return err
	}

	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE patient
		SET %[1]s = array_remove(%[1]s, $2), updated_at = NOW()
		WHERE id = $1`, col),
		id, year,
	)
	if err != nil {
		return fmt.Errorf("remove %s year: %w", disease, err)
	}
	return nil
}

func yearColumn(disease program.DiseaseType) (string, error) {
	switch disease {
	case program.DiseaseHT:
		return "ht_years", nil
	case program.DiseaseDM:
		return "dm_years", nil
	}
	return "", fmt.Errorf("unknown disease type: %q", disease)
}

func (r *repoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.ClinicID, &p.Name, &p.NIK, &p.Gender, &p.BirthDate,
		&p.HTYears, &p.DMYears, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, program.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}
