package examination

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

const htColumns = `id, patient_id, clinic_id, examination_date, systolic, diastolic, year, month, is_archived, created_at`
const dmColumns = `id, patient_id, clinic_id, examination_date, examination_type, result, year, month, is_archived, created_at`

func (r *repoPG) CreateHT(ctx context.Context, e *HTExamination) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ht_examination (id, patient_id, clinic_id, examination_date, systolic, diastolic, year, month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.PatientID, e.ClinicID, e.ExamDate, e.Systolic, e.Diastolic, e.ExamYear, e.ExamMonth,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("ht examination for patient %s on %s: %w",
			e.PatientID, e.ExamDate.Format("2006-01-02"), program.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert ht examination: %w", err)
	}
	return nil
}

func (r *repoPG) GetHT(ctx context.Context, id uuid.UUID) (*HTExamination, error) {
	var e HTExamination
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+htColumns+` FROM ht_examination WHERE id = $1`, id).Scan(
		&e.ID, &e.PatientID, &e.ClinicID, &e.ExamDate, &e.Systolic, &e.Diastolic,
		&e.ExamYear, &e.ExamMonth, &e.Archived, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, program.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ht examination: %w", err)
	}
	return &e, nil
}

func (r *repoPG) DeleteHT(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM ht_examination WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ht examination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return program.ErrNotFound
	}
	return nil
}

func (r *repoPG) CreateDM(ctx context.Context, e *DMExamination) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dm_examination (id, patient_id, clinic_id, examination_date, examination_type, result, year, month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.PatientID, e.ClinicID, e.ExamDate, e.ExamType, e.Result, e.ExamYear, e.ExamMonth,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("dm examination for patient %s on %s: %w",
			e.PatientID, e.ExamDate.Format("2006-01-02"), program.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert dm examination: %w", err)
	}
	return nil
}

func (r *repoPG) GetDM(ctx context.Context, id uuid.UUID) (*DMExamination, error) {
	var e DMExamination
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+dmColumns+` FROM dm_examination WHERE id = $1`, id).Scan(
		&e.ID, &e.PatientID, &e.ClinicID, &e.ExamDate, &e.ExamType, &e.Result,
		&e.ExamYear, &e.ExamMonth, &e.Archived, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, program.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dm examination: %w", err)
	}
	return &e, nil
}

func (r *repoPG) DeleteDM(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM dm_examination WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dm examination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return program.ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByClinic(ctx context.Context, disease program.DiseaseType, clinicID uuid.UUID, limit, offset int) ([]program.Visit, int, error) {
	table, err := examTable(disease)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE clinic_id = $1`, table), clinicID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s examinations: %w", disease, err)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE clinic_id = $1
		ORDER BY examination_date DESC, created_at DESC
		LIMIT $2 OFFSET $3`, visitColumns(disease), table),
		clinicID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s examinations: %w", disease, err)
	}
	defer rows.Close()

	visits, err := scanVisits(rows, disease)
	if err != nil {
		return nil, 0, err
	}
	return visits, total, nil
}

func (r *repoPG) CountByPatientYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) (int, error) {
	table, err := examTable(disease)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE patient_id = $1 AND year = $2`, table),
		patientID, year).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s examinations by year: %w", disease, err)
	}
	return count, nil
}

func examTable(disease program.DiseaseType) (string, error) {
	switch disease {
	case program.DiseaseHT:
		return "ht_examination", nil
	case program.DiseaseDM:
		return "dm_examination", nil
	}
	return "", fmt.Errorf("unknown disease type: %q", disease)
}

func visitColumns(disease program.DiseaseType) string {
	if disease == program.DiseaseDM {
		return `id, patient_id, clinic_id, examination_date, year, month, examination_type, result`
	}
	return `id, patient_id, clinic_id, examination_date, year, month, systolic, diastolic`
}

func scanVisits(rows pgx.Rows, disease program.DiseaseType) ([]program.Visit, error) {
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
