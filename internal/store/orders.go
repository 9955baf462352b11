package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
)

const orderColumns = `id, data_key0, data_value0, data_key1, data_value1,
	data_key2, data_value2, data_key3, data_value3,
	user_wallet_address, status, unit, created_at, updated_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateOrder inserts a pending order unless a matching one exists.
func (s *SQLiteStore) CreateOrder(ctx context.Context, fields domain.Fields, allowDuplicates bool) (int64, error) {
	if err := fields.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.inTx(ctx, "create order", func(tx *sql.Tx) error {
		existing, err := findOrders(ctx, tx, OrderFilter{Fields: fields, ExcludeAttested: allowDuplicates}, true)
		if err != nil {
			return err
		}

		if len(existing) > 0 {
			order := existing[0]
			if !allowDuplicates {
				return &domain.OrderError{
					Err:     domain.ErrAlreadyExists,
					OrderID: order.ID,
					Status:  order.Status,
					Unit:    order.Unit,
					Fields:  order.Fields,
				}
			}
			id = order.ID
			return nil
		}

		id, err = insertOrder(ctx, tx, fields)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, fields domain.Fields) (int64, error) {
	args := make([]any, 0, 2*domain.MaxFields+3)
	keys := fields.Keys()
	for i := 0; i < domain.MaxFields; i++ {
		if i < len(keys) {
			args = append(args, keys[i], fields[keys[i]])
		} else {
			args = append(args, nil, nil)
		}
	}
	now := time.Now().Unix()
	args = append(args, fields.Canonical(), now, now)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO attestation_orders (
			data_key0, data_value0, data_key1, data_value1,
			data_key2, data_value2, data_key3, data_value3,
			fields_key, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`, args...)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get order id: %w", err)
	}
	return id, nil
}

// FindOrder returns the first order matching filter.
func (s *SQLiteStore) FindOrder(ctx context.Context, filter OrderFilter) (*domain.Order, error) {
	orders, err := s.findOrders(ctx, filter, true)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

// FindOrders returns all orders matching filter.
func (s *SQLiteStore) FindOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	return s.findOrders(ctx, filter, false)
}

func (s *SQLiteStore) findOrders(ctx context.Context, filter OrderFilter, first bool) ([]*domain.Order, error) {
	return findOrders(ctx, s.db, filter, first)
}

// GetOrder retrieves an order by id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM attestation_orders WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

func findOrders(ctx context.Context, q querier, filter OrderFilter, first bool) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)

	switch {
	case filter.Fields != nil:
		if err := filter.Fields.Validate(); err != nil {
			return nil, err
		}
		where = append(where, "fields_key = ?")
		args = append(args, filter.Fields.Canonical())
	case filter.Address == "":
		return nil, fmt.Errorf("%w: order filter needs fields or an address", domain.ErrInvalidData)
	}

	if filter.Address != "" {
		where = append(where, "user_wallet_address = ?")
		args = append(args, filter.Address)
	}
	if filter.ExcludeAttested {
		where = append(where, "status != 'attested'")
	}

	query := `SELECT ` + orderColumns + ` FROM attestation_orders WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY id`
	if first {
		query += ` LIMIT 1`
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer func() { _ = rows.Close() }()

	var orders []*domain.Order
	for rows.Next() {
		var (
			order              domain.Order
			keys, values       [domain.MaxFields]sql.NullString
			address, unit      sql.NullString
			status             string
			createdAt, updated int64
		)
		if err := rows.Scan(
			&order.ID,
			&keys[0], &values[0], &keys[1], &values[1],
			&keys[2], &values[2], &keys[3], &values[3],
			&address, &status, &unit, &createdAt, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		order.Fields = make(domain.Fields, domain.MaxFields)
		for i := range keys {
			if !keys[i].Valid {
				break
			}
			order.Fields[keys[i].String] = values[i].String
		}
		order.Address = address.String
		order.Status = domain.Status(status)
		order.Unit = unit.String
		order.CreatedAt = time.Unix(createdAt, 0)
		order.UpdatedAt = time.Unix(updated, 0)
		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// BindAddress binds address to the non-attested order with fields.
func (s *SQLiteStore) BindAddress(ctx context.Context, fields domain.Fields, address string) error {
	if address == "" {
		return domain.ErrInvalidAddress
	}
	if err := fields.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, "bind address", func(tx *sql.Tx) error {
		order, err := firstOrder(ctx, tx, OrderFilter{Fields: fields, ExcludeAttested: true})
		if err != nil {
			return err
		}
		if order == nil {
			attested, err := firstOrder(ctx, tx, OrderFilter{Fields: fields})
			if err != nil {
				return err
			}
			if attested != nil {
				return &domain.OrderError{Err: domain.ErrAlreadyAttested, OrderID: attested.ID, Status: attested.Status, Unit: attested.Unit, Fields: fields}
			}
			return domain.ErrOrderNotFound
		}

		return updateOrder(ctx, tx, order.ID,
			`user_wallet_address = ?, status = 'addressed'`, address)
	})
}

// UnbindAddress clears address from the non-attested order bound to it.
func (s *SQLiteStore) UnbindAddress(ctx context.Context, fields domain.Fields, address string) error {
	if err := fields.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, "unbind address", func(tx *sql.Tx) error {
		order, err := firstOrder(ctx, tx, OrderFilter{Fields: fields, Address: address, ExcludeAttested: true})
		if err != nil {
			return err
		}
		if order == nil {
			attested, err := firstOrder(ctx, tx, OrderFilter{Fields: fields, Address: address})
			if err != nil {
				return err
			}
			if attested != nil {
				return &domain.OrderError{Err: domain.ErrAlreadyAttested, OrderID: attested.ID, Status: attested.Status, Unit: attested.Unit, Fields: fields}
			}
			return domain.ErrAddressNotFound
		}

		return updateOrder(ctx, tx, order.ID,
			`user_wallet_address = NULL, status = 'pending'`)
	})
}

// Finalize marks the order bound to address as attested.
func (s *SQLiteStore) Finalize(ctx context.Context, fields domain.Fields, address, unit string) error {
	if address == "" {
		return domain.ErrInvalidAddress
	}
	if unit == "" {
		return fmt.Errorf("%w: empty unit", domain.ErrInvalidData)
	}
	if err := fields.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, "finalize order", func(tx *sql.Tx) error {
		order, err := firstOrder(ctx, tx, OrderFilter{Fields: fields, Address: address, ExcludeAttested: true})
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		return updateOrder(ctx, tx, order.ID, `unit = ?, status = 'attested'`, unit)
	})
}

func firstOrder(ctx context.Context, tx *sql.Tx, filter OrderFilter) (*domain.Order, error) {
	orders, err := findOrders(ctx, tx, filter, true)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return orders[0], nil
}

// updateOrder applies set to a non-attested row. The status guard keeps an
// attested order terminal even if the caller raced another writer.
func updateOrder(ctx context.Context, tx *sql.Tx, id int64, set string, args ...any) error {
	args = append(args, time.Now().Unix(), id)
	result, err := tx.ExecContext(ctx,
		`UPDATE attestation_orders SET `+set+`, updated_at = ? WHERE id = ? AND status != 'attested'`, args...)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
