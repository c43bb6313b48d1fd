package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharow/sharow/internal/adapter/observability"
)

// expiredSessionDeleter is the slice of OtpSessionRepo the sweeper needs.
type expiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OtpCleanupService sweeps expired OTP sessions that were never verified.
type OtpCleanupService struct {
	Sessions expiredSessionDeleter
	now      func() time.Time
}

// NewOtpCleanupService creates a new sweeper.
func NewOtpCleanupService(sessions expiredSessionDeleter) *OtpCleanupService {
	return &OtpCleanupService{Sessions: sessions, now: time.Now}
}

// CleanupExpired deletes expired sessions once.
func (s *OtpCleanupService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.Sessions.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.OTPSessionsCleanedTotal.Add(float64(n))
		slog.Info("expired otp sessions removed", slog.Int64("deleted", n))
	}
	return n, nil
}

// RunPeriodic sweeps on every tick until ctx is cancelled.
func (s *OtpCleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupExpired(ctx); err != nil {
		slog.Error("initial otp cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("otp cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				slog.Error("periodic otp cleanup failed", slog.Any("error", err))
			}
		}
	}
}
