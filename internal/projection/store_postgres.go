package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	txcontext "courier/pkg/platform/tx"
)

// PostgresStore writes read models to the deliveries, delivery_locations,
// payments and orders tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, fn)
}

func (s *PostgresStore) UpsertDelivery(ctx context.Context, row DeliveryRow) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO deliveries (
			id, order_id, delivery_person_id, pickup_address, delivery_address,
			current_lat, current_lng, estimated_delivery_time, actual_delivery_time,
			notes, cancellation_reason, status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			delivery_person_id = EXCLUDED.delivery_person_id,
			pickup_address = EXCLUDED.pickup_address,
			delivery_address = EXCLUDED.delivery_address,
			current_lat = EXCLUDED.current_lat,
			current_lng = EXCLUDED.current_lng,
			estimated_delivery_time = EXCLUDED.estimated_delivery_time,
			actual_delivery_time = EXCLUDED.actual_delivery_time,
			notes = EXCLUDED.notes,
			cancellation_reason = EXCLUDED.cancellation_reason,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`,
		row.ID,
		row.OrderID,
		nullString(row.DeliveryPersonID),
		row.PickupAddress,
		row.DeliveryAddress,
		row.CurrentLatitude,
		row.CurrentLongitude,
		row.EstimatedDeliveryTime,
		row.ActualDeliveryTime,
		nullString(row.Notes),
		nullString(row.CancellationReason),
		row.Status,
		row.Version,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert delivery %s: %w", row.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertLocation(ctx context.Context, row LocationRow) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO delivery_locations (delivery_id, version, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (delivery_id, version) DO NOTHING
	`, row.DeliveryID, row.Version, row.Latitude, row.Longitude, row.RecordedAt)
	if err != nil {
		return fmt.Errorf("upsert location %s@%d: %w", row.DeliveryID, row.Version, err)
	}
	return nil
}

func (s *PostgresStore) UpsertPayment(ctx context.Context, row PaymentRow) error {
	metadata, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("marshal payment metadata: %w", err)
	}
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, user_id, amount, currency, payment_method,
			payment_intent_id, charge_id, refund_id, refunded_amount, failure_reason,
			status, metadata, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			user_id = EXCLUDED.user_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			payment_method = EXCLUDED.payment_method,
			payment_intent_id = EXCLUDED.payment_intent_id,
			charge_id = EXCLUDED.charge_id,
			refund_id = EXCLUDED.refund_id,
			refunded_amount = EXCLUDED.refunded_amount,
			failure_reason = EXCLUDED.failure_reason,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			version = EXCLUDED.version,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`,
		row.ID,
		row.OrderID,
		row.UserID,
		row.Amount,
		row.Currency,
		row.PaymentMethod,
		nullString(row.PaymentIntentID),
		nullString(row.ChargeID),
		nullString(row.RefundID),
		row.RefundedAmount,
		nullString(row.FailureReason),
		row.Status,
		metadata,
		row.Version,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert payment %s: %w", row.ID, err)
	}
	return nil
}

// SetOrderStatus only overwrites status when (at, source) sorts at or after
// the stamp of the cascade that last wrote it.
func (s *PostgresStore) SetOrderStatus(ctx context.Context, orderID, status, source string, at time.Time) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO orders (id, status, status_at, status_source, payment_status, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $3)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			status_at = EXCLUDED.status_at,
			status_source = EXCLUDED.status_source,
			updated_at = GREATEST(orders.updated_at, EXCLUDED.updated_at)
		WHERE (EXCLUDED.status_at, EXCLUDED.status_source) >= (orders.status_at, orders.status_source)
	`, orderID, status, at, source)
	if err != nil {
		return fmt.Errorf("cascade order %s status: %w", orderID, err)
	}
	return nil
}

func (s *PostgresStore) SetOrderPaymentStatus(ctx context.Context, orderID, status, source string, at time.Time) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO orders (id, status, payment_status, payment_status_at, payment_status_source, updated_at)
		VALUES ($1, 'pending', $2, $3, $4, $3)
		ON CONFLICT (id) DO UPDATE SET
			payment_status = EXCLUDED.payment_status,
			payment_status_at = EXCLUDED.payment_status_at,
			payment_status_source = EXCLUDED.payment_status_source,
			updated_at = GREATEST(orders.updated_at, EXCLUDED.updated_at)
		WHERE (EXCLUDED.payment_status_at, EXCLUDED.payment_status_source) >= (orders.payment_status_at, orders.payment_status_source)
	`, orderID, status, at, source)
	if err != nil {
		return fmt.Errorf("cascade order %s payment status: %w", orderID, err)
	}
	return nil
}

func (s *PostgresStore) Delivery(ctx context.Context, deliveryID string) (DeliveryRow, error) {
	var (
		row                                         DeliveryRow
		deliveryPersonID, notes, cancellationReason sql.NullString
		lat, lng                                    sql.NullFloat64
		eta, actual                                 sql.NullTime
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, order_id, delivery_person_id, pickup_address, delivery_address,
			current_lat, current_lng, estimated_delivery_time, actual_delivery_time,
			notes, cancellation_reason, status, version, created_at, updated_at
		FROM deliveries WHERE id = $1
	`, deliveryID).Scan(
		&row.ID, &row.OrderID, &deliveryPersonID, &row.PickupAddress, &row.DeliveryAddress,
		&lat, &lng, &eta, &actual,
		&notes, &cancellationReason, &row.Status, &row.Version, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return DeliveryRow{}, ErrNotFound
	}
	if err != nil {
		return DeliveryRow{}, fmt.Errorf("get delivery %s: %w", deliveryID, err)
	}
	row.DeliveryPersonID = deliveryPersonID.String
	row.Notes = notes.String
	row.CancellationReason = cancellationReason.String
	row.CurrentLatitude = floatPtr(lat)
	row.CurrentLongitude = floatPtr(lng)
	row.EstimatedDeliveryTime = timePtr(eta)
	row.ActualDeliveryTime = timePtr(actual)
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	return row, nil
}

func (s *PostgresStore) Locations(ctx context.Context, deliveryID string) ([]LocationRow, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT delivery_id, version, lat, lng, recorded_at
		FROM delivery_locations WHERE delivery_id = $1
		ORDER BY version ASC
	`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list locations %s: %w", deliveryID, err)
	}
	defer rows.Close()

	var out []LocationRow
	for rows.Next() {
		var row LocationRow
		if err := rows.Scan(&row.DeliveryID, &row.Version, &row.Latitude, &row.Longitude, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		row.RecordedAt = row.RecordedAt.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Payment(ctx context.Context, paymentID string) (PaymentRow, error) {
	var (
		row                                         PaymentRow
		intentID, chargeID, refundID, failureReason sql.NullString
		refunded                                    sql.NullInt64
		metadata                                    []byte
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, order_id, user_id, amount, currency, payment_method,
			payment_intent_id, charge_id, refund_id, refunded_amount, failure_reason,
			status, metadata, version, created_at, updated_at
		FROM payments WHERE id = $1
	`, paymentID).Scan(
		&row.ID, &row.OrderID, &row.UserID, &row.Amount, &row.Currency, &row.PaymentMethod,
		&intentID, &chargeID, &refundID, &refunded, &failureReason,
		&row.Status, &metadata, &row.Version, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PaymentRow{}, ErrNotFound
	}
	if err != nil {
		return PaymentRow{}, fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &row.Metadata); err != nil {
			return PaymentRow{}, fmt.Errorf("decode payment metadata: %w", err)
		}
	}
	row.PaymentIntentID = intentID.String
	row.ChargeID = chargeID.String
	row.RefundID = refundID.String
	row.FailureReason = failureReason.String
	if refunded.Valid {
		v := refunded.Int64
		row.RefundedAmount = &v
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	return row, nil
}

func (s *PostgresStore) Order(ctx context.Context, orderID string) (OrderRow, error) {
	var row OrderRow
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, status, payment_status, updated_at FROM orders WHERE id = $1
	`, orderID).Scan(&row.ID, &row.Status, &row.PaymentStatus, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderRow{}, ErrNotFound
	}
	if err != nil {
		return OrderRow{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	row.UpdatedAt = row.UpdatedAt.UTC()
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
