package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

type driftChecker interface {
	CheckAll(ctx context.Context) ([]commissions.DriftReport, int, error)
}

// ReconcileJobParams wires the balance drift job.
type ReconcileJobParams struct {
	Logger  *logger.Logger
	Checker driftChecker
}

// NewReconcileJob builds the read-only job that compares stored affiliate
// balances with their referral rows. It reports drift and never repairs it.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("drift checker required")
	}
	return &reconcileJob{logg: params.Logger, checker: params.Checker}, nil
}

type reconcileJob struct {
	logg    *logger.Logger
	checker driftChecker
}

func (j *reconcileJob) Name() string { return "commission-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	reports, scanned, err := j.checker.CheckAll(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"affiliates_scanned": scanned,
		"affiliates_drifted": len(reports),
	})
	for _, report := range reports {
		fields := make([]string, 0, len(report.Entries))
		for _, entry := range report.Entries {
			fields = append(fields, entry.Field)
		}
		j.logg.Warn(j.logg.WithFields(j.logg.WithAffiliateID(logCtx, report.AffiliateID.String()), map[string]any{
			"affiliate_code": report.AffiliateCode,
			"fields":         fields,
		}), "drifted affiliate requires review")
	}
	if err != nil {
		return fmt.Errorf("commission reconcile: %w", err)
	}
	j.logg.Info(logCtx, "commission reconcile complete")
	return nil
}
