package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"postbox/config"
)

// View partitions a mutation can invalidate. The UI subscribes to the
// invalidation channel and re-fetches any view named for its user.
const (
	ViewInbox         = "inbox"
	ViewSent          = "sent"
	ViewDrafts        = "drafts"
	ViewStarred       = "starred"
	ViewSnoozed       = "snoozed"
	ViewSpam          = "spam"
	ViewArchive       = "archive"
	ViewTrash         = "trash"
	ViewLabels        = "labels"
	ViewNotifications = "notifications"
)

const invalidationChannel = "postbox:view-invalidations"

type invalidationMessage struct {
	UserID uint     `json:"user_id"`
	Views  []string `json:"views"`
}

// Invalidator emits the stale-view signal after mutations: it drops the
// cached view keys and publishes the affected partitions per user. With
// Redis disabled every call is a no-op; mutations never depend on it.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(cfg config.RedisConfig) *Invalidator {
	if !cfg.Enabled {
		return &Invalidator{}
	}
	return &Invalidator{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// InvalidateViews marks the given view partitions stale for one user.
// Failures are logged and swallowed: the mutation already committed and the
// UI falls back to its normal refresh cycle.
func (i *Invalidator) InvalidateViews(ctx context.Context, userID uint, views ...string) {
	if i == nil || i.client == nil || len(views) == 0 {
		return
	}

	keys := make([]string, len(views))
	for n, view := range views {
		keys[n] = fmt.Sprintf("view:%d:%s", userID, view)
	}
	if err := i.client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to drop cached views")
	}

	payload, err := json.Marshal(invalidationMessage{UserID: userID, Views: views})
	if err != nil {
		return
	}
	if err := i.client.Publish(ctx, invalidationChannel, payload).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to publish view invalidation")
	}
}

func (i *Invalidator) Close() error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Close()
}
