package cron

import (
	"context"
	"fmt"
	"time"
)

const defaultCartRetentionDays = 90

type AbandonedCartJobParams struct {
	Repository    cartLineRepo
	RetentionDays int
}

type cartLineRepo interface {
	DeleteUntouchedSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewAbandonedCartJob removes cart lines nobody has touched within the retention window.
func NewAbandonedCartJob(params AbandonedCartJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultCartRetentionDays
	}
	return &abandonedCartJob{repo: params.Repository, days: days, now: time.Now}, nil
}

type abandonedCartJob struct {
	repo cartLineRepo
	days int
	now  func() time.Time
}

func (j *abandonedCartJob) Name() string { return "abandoned-cart-cleanup" }

func (j *abandonedCartJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-time.Duration(j.days) * 24 * time.Hour)
	deleted, err := j.repo.DeleteUntouchedSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("abandoned cart cleanup: %w", err)
	}
	return deleted, nil
}
