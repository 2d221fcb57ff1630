package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/reqflow/internal/platform/cache"
	"github.com/odyssey-erp/reqflow/jobs"
)

// jobsCLI wraps manual management helpers for queued jobs.
type jobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) (*jobsCLI, error) {
	opts, err := cache.Options(redisAddr)
	if err != nil {
		return nil, err
	}
	redisOpts := jobs.RedisOpts(opts)
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return nil, err
	}
	return &jobsCLI{client: client, inspector: asynq.NewInspector(redisOpts)}, nil
}

func (c *jobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// queueStats summarises the current queue state.
type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

func (c *jobsCLI) inspectQueue() (queueStats, error) {
	if c == nil || c.inspector == nil {
		return queueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return queueStats{}, err
	}
	stats := queueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
	}
	return stats, nil
}

func withJobs(ctx *commandContext, fn func(*jobsCLI) error) error {
	cfg, err := ctx.config()
	if err != nil {
		return err
	}
	cli, err := newJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	return fn(cli)
}

func newRemindCommand(ctx *commandContext) *cobra.Command {
	var after time.Duration
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Enqueue an approval reminder sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(ctx, func(cli *jobsCLI) error {
				if after <= 0 {
					after = ctx.cfg.ReminderAfter
				}
				enqueueCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				info, err := cli.client.EnqueueReminder(enqueueCtx, after)
				if errors.Is(err, asynq.ErrDuplicateTask) {
					fmt.Fprintln(cmd.OutOrStdout(), "A reminder sweep is already queued")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued reminder sweep %s (idle for more than %s)\n", info.ID, after)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&after, "after", 0, "Idle threshold; defaults to REMINDER_AFTER")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show background queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(ctx, func(cli *jobsCLI) error {
				stats, err := cli.inspectQueue()
				if err != nil {
					return err
				}
				row := []string{stats.Queue, fmt.Sprint(stats.Pending), fmt.Sprint(stats.Active), fmt.Sprint(stats.Scheduled), fmt.Sprint(stats.Retry)}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Queue", "Pending", "Active", "Scheduled", "Retry"},
					[][]string{row},
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
