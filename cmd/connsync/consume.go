package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/connsync/pkg/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// popTimeout bounds one blocking pop so shutdown is noticed promptly.
const popTimeout = 5 * time.Second

type consumeOptions struct {
	root *rootOptions
	key  string
}

func newConsumeCommand(root *rootOptions) *cobra.Command {
	opts := &consumeOptions{root: root}

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Persist queued events into the collection files",
		Long: `Consume pops events pushed by runs with CONNSYNC_EVENT_SINK=redis and
appends every added record to its collection file. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&opts.key, "queue", events.DefaultRedisKey, "Redis list to consume")

	return cmd
}

func (o *consumeOptions) run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, o.root.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.redis == nil {
		return errors.New("consume requires CONNSYNC_REDIS_URL")
	}

	log.Info().Str("queue", o.key).Msg("Consuming events")
	err = consume(ctx, a.redis, o.key, events.NewStoreNotifier(a.files))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// consume applies queued envelopes to sink until ctx is done. Envelopes that
// cannot be decoded or applied are logged and dropped.
func consume(ctx context.Context, rdb *redis.Client, key string, sink events.Notifier) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		env, err := events.Pop(ctx, rdb, key, popTimeout)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, events.ErrUnknownEvent), errors.Is(err, events.ErrMalformedEvent):
			log.Warn().Err(err).Msg("Dropping event")
			continue
		case err != nil:
			return err
		}

		if err := events.Dispatch(ctx, sink, env); err != nil {
			log.Error().Err(err).Str("type", env.Type).Msg("Failed to apply event")
		}
	}
}
