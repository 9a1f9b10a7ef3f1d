package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/models"
)

func CreateMarketer(ctx context.Context, db *sql.DB, email, name string) (*models.Marketer, error) {
	marketer := &models.Marketer{}

	query := `
		INSERT INTO marketers (email, name, created_at, updated_at, version)
		VALUES ($1, $2, NOW(), NOW(), 1)
		RETURNING id, email, name, created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query, email, name).Scan(
		&marketer.ID,
		&marketer.Email,
		&marketer.Name,
		&marketer.CreatedAt,
		&marketer.UpdatedAt,
		&marketer.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create marketer: %w", err)
	}

	return marketer, nil
}

func GetMarketer(ctx context.Context, db *sql.DB, id int64) (*models.Marketer, error) {
	marketer := &models.Marketer{}

	query := `
		SELECT id, email, name, created_at, updated_at, version
		FROM marketers
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&marketer.ID,
		&marketer.Email,
		&marketer.Name,
		&marketer.CreatedAt,
		&marketer.UpdatedAt,
		&marketer.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrMarketerNotFound
		}
		return nil, fmt.Errorf("get marketer: %w", err)
	}

	return marketer, nil
}

func ListMarketers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM marketers`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count marketers: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, email, name, created_at, updated_at, version
		FROM marketers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list marketers: %w", err)
	}
	defer rows.Close()

	var marketers []models.Marketer
	for rows.Next() {
		var marketer models.Marketer
		err := rows.Scan(
			&marketer.ID,
			&marketer.Email,
			&marketer.Name,
			&marketer.CreatedAt,
			&marketer.UpdatedAt,
			&marketer.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan marketer: %w", err)
		}
		marketers = append(marketers, marketer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(marketers, total, page, pageSize), nil
}
