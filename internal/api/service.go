package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/teleluxbot/telelux/internal/models"
)

// BanLister is the read side of the blacklist.
type BanLister interface {
	ListBans(ctx context.Context) ([]*models.BlacklistEntry, error)
	CountBans(ctx context.Context) (int64, error)
}

type Service struct {
	bans      BanLister
	clock     clockwork.Clock
	startedAt time.Time
}

func NewService(bans BanLister, clock clockwork.Clock) *Service {
	return &Service{
		bans:      bans,
		clock:     clock,
		startedAt: clock.Now(),
	}
}

type blacklistEntry struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle,omitempty"`
	Reason      string    `json:"reason"`
	LeaveCount  int       `json:"leave_count"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status": "ok",
			"uptime": s.clock.Since(s.startedAt).Truncate(time.Second).String(),
		})
	}
}

func (s *Service) HandleBlacklist() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		entries, err := s.bans.ListBans(ctx)
		if err != nil {
			logrus.Errorf("failed to list blacklist: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list blacklist"})
		}
		total, err := s.bans.CountBans(ctx)
		if err != nil {
			logrus.Errorf("failed to count blacklist: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to count blacklist"})
		}

		res := make([]blacklistEntry, 0, len(entries))
		for _, e := range entries {
			res = append(res, blacklistEntry{
				UserID:      e.UserID,
				DisplayName: e.DisplayName,
				Handle:      e.Handle,
				Reason:      e.Reason,
				LeaveCount:  e.LeaveCount,
				AddedBy:     e.AddedBy,
				AddedAt:     e.AddedAt,
			})
		}
		return c.JSON(http.StatusOK, echo.Map{"total": total, "entries": res})
	}
}

// NewServer routes the status endpoints. Metrics come from the default
// prometheus registry.
func NewServer(s *Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", s.HandleHealth())
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/blacklist", s.HandleBlacklist())
	return e
}
