package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabd/internal/discord"
	"collabd/internal/reaper"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskChannelDelete = "channel:delete"
	TaskReaperSweep   = "reaper:sweep"
)

type Platform interface {
	DeleteChannel(ctx context.Context, channelID string) error
}

type JobServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	client    *asynq.Client
	platform  Platform
	reaper    *reaper.Reaper
	log       *zap.Logger
}

func NewJobServer(redisAddr string, platform Platform, rp *reaper.Reaper, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	return &JobServer{
		server:    server,
		scheduler: scheduler,
		client:    client,
		platform:  platform,
		reaper:    rp,
		log:       log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()

	// Register job handlers
	mux.HandleFunc(TaskChannelDelete, js.handleChannelDelete)
	mux.HandleFunc(TaskReaperSweep, js.handleReaperSweep)

	// Daily idle-channel sweep, plus one run right after start so a long
	// outage doesn't leave idle channels waiting a full day.
	if _, err := js.scheduler.Register("@daily", asynq.NewTask(TaskReaperSweep, nil)); err != nil {
		return fmt.Errorf("failed to register sweep schedule: %w", err)
	}
	if err := js.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if _, err := js.client.Enqueue(asynq.NewTask(TaskReaperSweep, nil)); err != nil {
		js.log.Warn("Failed to enqueue startup sweep", zap.Error(err))
	}

	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.scheduler.Shutdown()
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers

func (js *JobServer) handleChannelDelete(ctx context.Context, t *asynq.Task) error {
	channelID := string(t.Payload())

	if err := js.platform.DeleteChannel(ctx, channelID); err != nil {
		// Already gone is success for a deferred delete.
		if errors.Is(err, discord.ErrNotFound) {
			return nil
		}
		js.log.Error("Channel deletion failed", zap.String("channel_id", channelID), zap.Error(err))
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}

	js.log.Info("Channel deleted", zap.String("channel_id", channelID))
	return nil
}

func (js *JobServer) handleReaperSweep(ctx context.Context, t *asynq.Task) error {
	removed, err := js.reaper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	js.log.Info("Idle channel sweep completed", zap.Int("removed", removed))
	return nil
}

// Schedule jobs

func ScheduleChannelDelete(client *asynq.Client, channelID string, delay time.Duration) error {
	task := asynq.NewTask(TaskChannelDelete, []byte(channelID))
	var err error
	if delay > 0 {
		_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	} else {
		_, err = client.Enqueue(task)
	}
	return err
}
