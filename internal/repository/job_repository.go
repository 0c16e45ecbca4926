package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-tracker/internal/domain"
)

// JobRepository encapsulates job persistence.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListCompletedByCustomer(ctx context.Context, customerID string) ([]domain.Job, error)
	// MaxJobSequence returns the highest numeric suffix among job ids starting with prefix, or 0.
	MaxJobSequence(ctx context.Context, prefix string) (int64, error)
}

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository instantiates repository.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

const jobColumns = `id, service_request_id, customer_id, customer_name, device, issue, estimated_cost::text,
               status, service_warranty_days, parts_warranty_days, completed_at,
               service_expiry_date, parts_expiry_date, created_at, updated_at`

func (r *jobRepository) Create(ctx context.Context, job *domain.Job) error {
	const query = `
        INSERT INTO jobs (id, service_request_id, customer_id, customer_name, device, issue, estimated_cost,
            status, service_warranty_days, parts_warranty_days, completed_at, service_expiry_date,
            parts_expiry_date, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,($7::text)::numeric,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.ServiceRequestID,
		job.CustomerID,
		job.CustomerName,
		job.Device,
		job.Issue,
		decimalText(job.EstimatedCost),
		job.Status,
		job.ServiceWarrantyDays,
		job.PartsWarrantyDays,
		job.CompletedAt,
		job.ServiceExpiryDate,
		job.PartsExpiryDate,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

func (r *jobRepository) Update(ctx context.Context, job *domain.Job) error {
	const query = `
        UPDATE jobs SET status=$1, service_warranty_days=$2, parts_warranty_days=$3, completed_at=$4,
            service_expiry_date=$5, parts_expiry_date=$6, updated_at=$7
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		job.Status,
		job.ServiceWarrantyDays,
		job.PartsWarrantyDays,
		job.CompletedAt,
		job.ServiceExpiryDate,
		job.PartsExpiryDate,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *jobRepository) ListCompletedByCustomer(ctx context.Context, customerID string) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
        WHERE customer_id=$1 AND status=$2 ORDER BY completed_at DESC`
	rows, err := r.pool.Query(ctx, query, customerID, domain.JobStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (r *jobRepository) MaxJobSequence(ctx context.Context, prefix string) (int64, error) {
	const query = `SELECT COALESCE(MAX(CAST(substr(id, $2) AS BIGINT)), 0) FROM jobs WHERE id LIKE $1`
	var n int64
	err := r.pool.QueryRow(ctx, query, prefix+"%", len(prefix)+1).Scan(&n)
	return n, err
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job  domain.Job
		cost *string
	)
	if err := row.Scan(
		&job.ID,
		&job.ServiceRequestID,
		&job.CustomerID,
		&job.CustomerName,
		&job.Device,
		&job.Issue,
		&cost,
		&job.Status,
		&job.ServiceWarrantyDays,
		&job.PartsWarrantyDays,
		&job.CompletedAt,
		&job.ServiceExpiryDate,
		&job.PartsExpiryDate,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	amount, err := parseDecimal(cost)
	if err != nil {
		return nil, err
	}
	job.EstimatedCost = amount
	return &job, nil
}
