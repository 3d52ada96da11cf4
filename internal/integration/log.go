package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-core.git/internal/postgres"
)

type Type string

const (
	TypeERP       Type = "ERP"
	TypeLogistics Type = "LOGISTICS"
)

// Log is one append-only record of an external-system call, written outside
// the order's transaction so it survives compensation.
type Log struct {
	ID         string
	OrderID    string
	Type       Type
	Success    bool
	RetryCount int
	Message    string
	CreatedAt  time.Time
}

type LogRepo struct{ DB *pgxpool.Pool }

func (r *LogRepo) Append(ctx context.Context, l Log) error {
	_, err := postgres.From(ctx, r.DB).Exec(ctx, `
		INSERT INTO integration_logs(id, order_id, integration_type, is_success, retry_count, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.OrderID, l.Type, l.Success, l.RetryCount, l.Message, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("append integration log: %w", err)
	}
	return nil
}

func (r *LogRepo) Failures(ctx context.Context, limit int) ([]Log, error) {
	rows, err := postgres.From(ctx, r.DB).Query(ctx, `
		SELECT id, order_id, integration_type, is_success, retry_count, message, created_at
		FROM integration_logs WHERE is_success = false
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("integration failures: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Type, &l.Success, &l.RetryCount, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
