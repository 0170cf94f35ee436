package activity

import (
	"context"
	"fmt"

	"ms-boost/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertActivity(ctx context.Context, a *models.Activity) error {
	if _, err := d.Bun.NewInsert().Model(a).Exec(ctx); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (d *DB) RecentActivities(ctx context.Context, limit int) ([]models.Activity, error) {
	activities := []models.Activity{}
	err := d.Bun.NewSelect().
		Model(&activities).
		OrderExpr("a.created_at DESC").
		OrderExpr("a.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recent activities: %w", err)
	}
	return activities, nil
}
