package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/models"
)

// RedisStore keeps each record under its own key. Writes run in WATCH/MULTI so
// a concurrent writer aborts the transaction, and every committed change is
// published on the record's channel inside the same MULTI.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to url, e.g. redis://localhost:6379/0.
func NewRedisStore(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "gonu:session:"}
}

func (r *RedisStore) key(id string) string     { return r.prefix + id }
func (r *RedisStore) channel(id string) string { return r.prefix + id + ":changes" }

func (r *RedisStore) Create(ctx context.Context, sess *models.GameSession) error {
	sess.Version = 1
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	created, err := r.client.SetNX(ctx, r.key(sess.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create %s: %w", sess.ID, err)
	}
	if !created {
		return ErrExists
	}
	r.publish(ctx, Change{ID: sess.ID, Session: sess})
	return nil
}

func (r *RedisStore) Read(ctx context.Context, id string) (*models.GameSession, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", id, err)
	}
	return decodeSession(data)
}

func (r *RedisStore) Write(ctx context.Context, sess *models.GameSession, expectedVersion int64) error {
	key := r.key(sess.ID)
	next := sess.Clone()
	next.Version = expectedVersion + 1

	data, err := encodeSession(next)
	if err != nil {
		return err
	}
	change, err := encodeChange(Change{ID: sess.ID, Session: next})
	if err != nil {
		return err
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Publish(ctx, r.channel(sess.ID), change)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		sess.Version = next.Version
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return err
	}
	return fmt.Errorf("redis write %s: %w", sess.ID, err)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	r.publish(ctx, Change{ID: id, Deleted: true})
	return nil
}

func (r *RedisStore) publish(ctx context.Context, c Change) {
	data, err := encodeChange(c)
	if err != nil {
		logger.Log.Errorf("redis: encode change %s: %v", c.ID, err)
		return
	}
	if err := r.client.Publish(ctx, r.channel(c.ID), data).Err(); err != nil {
		logger.Log.Errorf("redis: publish change %s: %v", c.ID, err)
	}
}

func (r *RedisStore) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", id, err)
	}

	out := make(chan Change, feedBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c, err := decodeChange([]byte(msg.Payload))
				if err != nil {
					logger.Log.Warnf("redis: %v", err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
