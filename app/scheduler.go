package app

import (
	"context"
	"log/slog"
	"time"

	"library_circulation/circulation"
)

// RunSweeps runs the periodic circulation jobs every interval until ctx ends.
// Each job is idempotent, so overlapping with a manual `sweep` run is harmless.
func RunSweeps(ctx context.Context, svc *circulation.Service, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			SweepOnce(ctx, svc, log)
		}
	}
}

// SweepOnce 依次执行：逾期标记 -> 过期未取 -> 空闲副本分配
func SweepOnce(ctx context.Context, svc *circulation.Service, log *slog.Logger) []circulation.SweepReport {
	jobs := []func(context.Context) (circulation.SweepReport, error){
		svc.MarkOverdue,
		svc.ExpirePickups,
		svc.FulfillWaiting,
	}
	reports := make([]circulation.SweepReport, 0, len(jobs))
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		rep, err := job(ctx)
		if err != nil {
			log.ErrorContext(ctx, "sweep failed", slog.String("job", rep.Job), slog.Any("error", err))
			continue
		}
		reports = append(reports, rep)
	}
	return reports
}
