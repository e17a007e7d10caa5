package httpapi

import (
	"context"
	"time"

	"github.com/jasonlvhit/gocron"
	"github.com/signalsfoundry/map-overlay/internal/logging"
)

// StartRefresh re-fetches the current trip every interval until the returned
// stop function is called. Intervals under a second disable the refresh.
func (s *Server) StartRefresh(ctx context.Context, every time.Duration) (stop func()) {
	seconds := uint64(every / time.Second)
	if seconds == 0 {
		return func() {}
	}

	sched := gocron.NewScheduler()
	sched.Every(seconds).Seconds().Do(func() {
		_ = s.Refresh(ctx)
	})
	stopped := sched.Start()
	s.log.Info(ctx, "route refresh scheduled", logging.String("every", every.String()))

	return func() {
		sched.Clear()
		close(stopped)
	}
}
