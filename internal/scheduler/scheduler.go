package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/hub"
	"github.com/DoyleJ11/weatherboard/internal/store"
)

// DefaultInterval matches how often the upstream weather data changes in practice.
const DefaultInterval = 10 * time.Minute

// Scheduler periodically ticks every known room, resident or only persisted.
type Scheduler struct {
	scheduler *gocron.Scheduler
	hub       *hub.Hub
	store     store.Store
	interval  time.Duration
	logger    *zap.Logger
}

func New(interval time.Duration, h *hub.Hub, st store.Store, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		hub:       h,
		store:     st,
		interval:  interval,
		logger:    logger.Named("scheduler"),
	}
}

// Start schedules the refresh job. The first run happens one interval from now.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("refresh scheduled", zap.Duration("interval", s.interval))
	return nil
}

// RunOnce ticks every room the store knows about plus any resident ones.
func (s *Scheduler) RunOnce(ctx context.Context) {
	records, err := s.store.List(ctx, store.KeyPrefix)
	if err != nil {
		// Still tick what is already in memory.
		s.logger.Error("list rooms", zap.Error(err))
	}

	ids := make([]string, 0, len(records))
	for key := range records {
		if id, ok := store.RoomID(key); ok {
			ids = append(ids, id)
		}
	}

	select {
	case s.hub.Inbox() <- hub.TickRooms{IDs: ids}:
		s.logger.Debug("tick sent", zap.Int("persisted_rooms", len(ids)))
	case <-ctx.Done():
		s.logger.Warn("tick not delivered", zap.Error(ctx.Err()))
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
