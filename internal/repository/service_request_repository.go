package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/repair-tracker/internal/domain"
)

// ErrVersionConflict is returned when a row changed since it was read.
var ErrVersionConflict = errors.New("repository: version conflict")

// ServiceRequestFilter captures list parameters.
type ServiceRequestFilter struct {
	CustomerID  *string
	Stages      []domain.Stage
	Statuses    []domain.RequestStatus
	ServiceMode *domain.ServiceMode
	Intent      *domain.RequestIntent
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// ServiceRequestRepository encapsulates service request persistence.
type ServiceRequestRepository interface {
	Create(ctx context.Context, req *domain.ServiceRequest, initial domain.RequestEvent) error
	GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
	GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.ServiceRequest, error)
	List(ctx context.Context, filter ServiceRequestFilter) ([]domain.ServiceRequest, error)
	Update(ctx context.Context, req *domain.ServiceRequest, newEvents []domain.RequestEvent) error
	ListEvents(ctx context.Context, serviceRequestID string) ([]domain.RequestEvent, error)
	// MaxTicketSequence returns the highest numeric suffix among ticket numbers
	// starting with prefix, or 0.
	MaxTicketSequence(ctx context.Context, prefix string) (int64, error)
}

type serviceRequestRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRequestRepository instantiates repository.
func NewServiceRequestRepository(pool *pgxpool.Pool) ServiceRequestRepository {
	return &serviceRequestRepository{pool: pool}
}

const serviceRequestTable = "service_requests"

var serviceRequestColumns = []string{
	"id", "ticket_number", "customer_id", "customer_name", "phone",
	"service_mode", "request_intent", "stage", "status",
	"is_quote", "quote_status", "quote_amount::text", "quote_notes", "quoted_at", "accepted_at",
	"pickup_tier", "address", "visit_kind", "visit_date",
	"expected_pickup_date", "expected_return_date", "expected_ready_date",
	"device_brand", "device_model", "screen_size", "issue", "description", "images",
	"converted_job_id", "cancel_reason", "version", "created_at", "updated_at",
}

func (r *serviceRequestRepository) Create(ctx context.Context, req *domain.ServiceRequest, initial domain.RequestEvent) error {
	const query = `
        INSERT INTO service_requests (id, ticket_number, customer_id, customer_name, phone,
            service_mode, request_intent, stage, status, is_quote, quote_status, quote_amount, quote_notes,
            quoted_at, accepted_at, pickup_tier, address, visit_kind, visit_date,
            expected_pickup_date, expected_return_date, expected_ready_date,
            device_brand, device_model, screen_size, issue, description, images,
            converted_job_id, cancel_reason, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,($12::text)::numeric,$13,$14,$15,$16,$17,$18,$19,
            $20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,1,$31,$32)`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, query,
		req.ID,
		req.TicketNumber,
		req.CustomerID,
		req.CustomerName,
		req.Phone,
		req.ServiceMode,
		req.Intent,
		req.Stage,
		req.Status,
		req.IsQuote,
		req.QuoteStatus,
		decimalText(req.QuoteAmount),
		req.QuoteNotes,
		req.QuotedAt,
		req.AcceptedAt,
		tierText(req.PickupTier),
		req.Address,
		visitKind(req.Visit),
		req.Visit.Date,
		req.ExpectedPickupDate,
		req.ExpectedReturnDate,
		req.ExpectedReadyDate,
		req.Device.Brand,
		req.Device.Model,
		req.Device.ScreenSize,
		req.Device.Issue,
		req.Device.Description,
		imagesOrEmpty(req.Device.Images),
		req.ConvertedJobID,
		req.CancelReason,
		req.CreatedAt,
		req.UpdatedAt,
	); err != nil {
		return err
	}
	if err := insertEvents(ctx, tx, []domain.RequestEvent{initial}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	req.Version = 1
	return nil
}

// Update writes req and appends newEvents atomically. req.Version is the version
// that was read; on success it is incremented.
func (r *serviceRequestRepository) Update(ctx context.Context, req *domain.ServiceRequest, newEvents []domain.RequestEvent) error {
	const query = `
        UPDATE service_requests SET stage=$1, status=$2, quote_status=$3, quote_amount=($4::text)::numeric,
            quote_notes=$5, quoted_at=$6, accepted_at=$7, pickup_tier=$8, address=$9, visit_kind=$10,
            visit_date=$11, expected_pickup_date=$12, expected_return_date=$13, expected_ready_date=$14,
            converted_job_id=$15, cancel_reason=$16, updated_at=$17, version=version+1
        WHERE id=$18 AND version=$19`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, query,
		req.Stage,
		req.Status,
		req.QuoteStatus,
		decimalText(req.QuoteAmount),
		req.QuoteNotes,
		req.QuotedAt,
		req.AcceptedAt,
		tierText(req.PickupTier),
		req.Address,
		visitKind(req.Visit),
		req.Visit.Date,
		req.ExpectedPickupDate,
		req.ExpectedReturnDate,
		req.ExpectedReadyDate,
		req.ConvertedJobID,
		req.CancelReason,
		req.UpdatedAt,
		req.ID,
		req.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM service_requests WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrVersionConflict
	}
	if err := insertEvents(ctx, tx, newEvents); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	req.Version++
	return nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, evts []domain.RequestEvent) error {
	const query = `
        INSERT INTO service_request_events (id, service_request_id, status, message, actor, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	for _, e := range evts {
		if _, err := tx.Exec(ctx, query, e.ID, e.ServiceRequestID, e.Status, e.Message, e.Actor, e.OccurredAt); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return nil
}

func (r *serviceRequestRepository) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	return r.fetchSingle(ctx, sq.Eq{"id": id})
}

func (r *serviceRequestRepository) GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.ServiceRequest, error) {
	return r.fetchSingle(ctx, sq.Eq{"ticket_number": strings.ToUpper(strings.TrimSpace(ticketNumber))})
}

func (r *serviceRequestRepository) MaxTicketSequence(ctx context.Context, prefix string) (int64, error) {
	const query = `
        SELECT COALESCE(MAX(CAST(substr(ticket_number, $2) AS BIGINT)), 0)
        FROM service_requests WHERE ticket_number LIKE $1`
	var n int64
	err := r.pool.QueryRow(ctx, query, prefix+"%", len(prefix)+1).Scan(&n)
	return n, err
}

func (r *serviceRequestRepository) fetchSingle(ctx context.Context, where sq.Eq) (*domain.ServiceRequest, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Select(serviceRequestColumns...).From(serviceRequestTable).Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	return scanServiceRequest(r.pool.QueryRow(ctx, query, args...))
}

func (r *serviceRequestRepository) List(ctx context.Context, filter ServiceRequestFilter) ([]domain.ServiceRequest, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	builder := psql.Select(serviceRequestColumns...).From(serviceRequestTable)

	if filter.CustomerID != nil {
		builder = builder.Where(sq.Eq{"customer_id": *filter.CustomerID})
	}
	if len(filter.Stages) > 0 {
		builder = builder.Where(sq.Eq{"stage": stageStrings(filter.Stages)})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if filter.ServiceMode != nil {
		builder = builder.Where(sq.Eq{"service_mode": string(*filter.ServiceMode)})
	}
	if filter.Intent != nil {
		builder = builder.Where(sq.Eq{"request_intent": string(*filter.Intent)})
	}
	if filter.CreatedFrom != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.CreatedTo})
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.TrimSpace(*filter.SearchTerm) + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"ticket_number": search},
			sq.ILike{"customer_name": search},
			sq.ILike{"phone": search},
			sq.ILike{"device_brand": search},
		})
	}

	builder = builder.OrderBy("created_at DESC")
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	builder = builder.Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ServiceRequest
	for rows.Next() {
		req, err := scanServiceRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *serviceRequestRepository) ListEvents(ctx context.Context, serviceRequestID string) ([]domain.RequestEvent, error) {
	const query = `
        SELECT id, service_request_id, status, message, actor, occurred_at
        FROM service_request_events WHERE service_request_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, serviceRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RequestEvent
	for rows.Next() {
		var e domain.RequestEvent
		if err := rows.Scan(&e.ID, &e.ServiceRequestID, &e.Status, &e.Message, &e.Actor, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanServiceRequest(row pgx.Row) (*domain.ServiceRequest, error) {
	var (
		req         domain.ServiceRequest
		quoteAmount *string
		pickupTier  *string
		kind        string
		visitDate   *time.Time
	)
	if err := row.Scan(
		&req.ID,
		&req.TicketNumber,
		&req.CustomerID,
		&req.CustomerName,
		&req.Phone,
		&req.ServiceMode,
		&req.Intent,
		&req.Stage,
		&req.Status,
		&req.IsQuote,
		&req.QuoteStatus,
		&quoteAmount,
		&req.QuoteNotes,
		&req.QuotedAt,
		&req.AcceptedAt,
		&pickupTier,
		&req.Address,
		&kind,
		&visitDate,
		&req.ExpectedPickupDate,
		&req.ExpectedReturnDate,
		&req.ExpectedReadyDate,
		&req.Device.Brand,
		&req.Device.Model,
		&req.Device.ScreenSize,
		&req.Device.Issue,
		&req.Device.Description,
		&req.Device.Images,
		&req.ConvertedJobID,
		&req.CancelReason,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	amount, err := parseDecimal(quoteAmount)
	if err != nil {
		return nil, err
	}
	req.QuoteAmount = amount
	if pickupTier != nil {
		tier := domain.PickupTier(*pickupTier)
		req.PickupTier = &tier
	}
	req.Visit = domain.VisitSchedule{Kind: domain.VisitKind(kind), Date: visitDate}
	if req.Visit.Kind == "" {
		req.Visit.Kind = domain.VisitUnset
	}
	return &req, nil
}

func stageStrings(stages []domain.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return &d, nil
}

func tierText(t *domain.PickupTier) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

func visitKind(v domain.VisitSchedule) string {
	if v.Kind == "" {
		return string(domain.VisitUnset)
	}
	return string(v.Kind)
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
