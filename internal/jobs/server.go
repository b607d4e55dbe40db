package jobs

import (
	"context"

	"github.com/zoranhorsy/reboul-checkout/internal/jobs/tasks"
	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/hibiken/asynq"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewServer(redisAddr string, concurrency int, notifications *services.NotificationService, stock *services.StockService) *Server {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				DefaultQueue: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logging.Error(ctx).
					Err(err).
					Str("task_type", task.Type()).
					Msg("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderEmail, tasks.HandleOrderEmail(notifications))
	mux.Handle(TypeExpireReservations, tasks.HandleExpireReservations(stock))

	return &Server{
		server: server,
		mux:    mux,
	}
}

func (s *Server) Start() error {
	logging.Logger().Info().Msg("starting asynq worker")
	return s.server.Start(s.mux)
}

func (s *Server) Shutdown() {
	logging.Logger().Info().Msg("shutting down asynq worker")
	s.server.Shutdown()
}

// NewScheduler registers the periodic reservation expiry sweep.
func NewScheduler(redisAddr string) *asynq.Scheduler {
	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: redisAddr}, nil)

	task := asynq.NewTask(TypeExpireReservations, nil)
	if _, err := scheduler.Register("@every 10m", task); err != nil {
		logging.Logger().Error().Err(err).Msg("failed to register expiry sweep")
	}

	return scheduler
}
