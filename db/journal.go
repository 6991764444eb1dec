// Package db keeps a SQLite journal of delivered posts. The cursor file stays
// authoritative; the journal is for operators.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"postrelay/models"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

type Journal struct {
	db *sql.DB
}

// Open migrates and opens the journal at path
func Open(path string) (*Journal, error) {
	if err := Migrate(path); err != nil {
		return nil, err
	}
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) RecordDelivery(ctx context.Context, d models.Delivery) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("deliveries").
		Cols("account_id", "post_id", "delivered_at", "content").
		Values(d.AccountID, d.PostID, d.DeliveredAt.Unix(), d.Content)

	query, args := ib.Build()
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// History returns the latest deliveries for account, newest first
func (j *Journal) History(ctx context.Context, account string, limit int) ([]models.Delivery, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "account_id", "post_id", "delivered_at", "content").From("deliveries")
	if account != "" {
		sb.Where(sb.Equal("account_id", account))
	}
	sb.OrderBy("post_id DESC", "id DESC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		var d models.Delivery
		var deliveredAt int64
		if err := rows.Scan(&d.Id, &d.AccountID, &d.PostID, &deliveredAt, &d.Content); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.DeliveredAt = time.Unix(deliveredAt, 0).UTC()
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Tidy deletes journal rows delivered more than olderThan ago
func (j *Journal) Tidy(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("deliveries").Where(del.LessThan("delivered_at", cutoff))
	query, args := del.Build()

	log.WithFields(log.Fields{"sql": query, "args": args}).Debug("Tidying journal")

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("tidy journal: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"removed": removed, "olderThan": olderThan}).Info("Tidied journal")
	return removed, nil
}
