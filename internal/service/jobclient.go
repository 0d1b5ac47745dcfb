package service

import (
	"time"

	"collabd/internal/jobs"

	"github.com/hibiken/asynq"
)

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) ScheduleChannelDelete(channelID string, delay time.Duration) error {
	return jobs.ScheduleChannelDelete(c.client, channelID, delay)
}
