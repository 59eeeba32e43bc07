package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/giftwise-backend/internal/models"
)

const (
	// CacheKeyPrefix is the Redis key prefix for cached data
	CacheKeyPrefix = "cache:"
	// RecipientListTTL is how long a list generation lives once filled
	RecipientListTTL = 10 * time.Minute
)

// RecipientGenKey holds the write generation of userID's recipients. It is
// bumped after every successful write and never expires.
func RecipientGenKey(userID string) string {
	return CacheKeyPrefix + "recipients:gen:" + userID
}

// RecipientListKey is the cache key of userID's list at generation gen.
func RecipientListKey(userID string, gen int64) string {
	return CacheKeyPrefix + "recipients:" + userID + ":" + strconv.FormatInt(gen, 10)
}

// CachedRecipientStore caches ListByUser in Redis. Lists are keyed by the
// owner's write generation, so a fill racing a write lands under a
// generation nobody reads again. Redis failures fall through to the
// wrapped store.
type CachedRecipientStore struct {
	RecipientStore
	rdb *redis.Client
}

func NewCachedRecipientStore(next RecipientStore, rdb *redis.Client) *CachedRecipientStore {
	return &CachedRecipientStore{RecipientStore: next, rdb: rdb}
}

func (c *CachedRecipientStore) generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, RecipientGenKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *CachedRecipientStore) ListByUser(ctx context.Context, userID string) ([]models.Recipient, error) {
	// read the generation before the store so a concurrent write moves
	// readers past whatever this call fills
	gen, err := c.generation(ctx, userID)
	if err != nil {
		return c.RecipientStore.ListByUser(ctx, userID)
	}
	key := RecipientListKey(userID, gen)

	if val, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []models.Recipient
		if json.Unmarshal(val, &cached) == nil {
			return cached, nil
		}
	}

	recipients, err := c.RecipientStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if recipients == nil {
		recipients = []models.Recipient{}
	}

	if data, err := json.Marshal(recipients); err == nil {
		c.rdb.Set(ctx, key, data, RecipientListTTL)
	}
	return recipients, nil
}

// invalidate moves userID to a new generation. If the bump fails the old
// entry is deleted so it cannot outlive the write.
func (c *CachedRecipientStore) invalidate(ctx context.Context, userID string) {
	gen, err := c.rdb.Incr(ctx, RecipientGenKey(userID)).Result()
	if err != nil {
		if prev, err := c.generation(ctx, userID); err == nil {
			c.rdb.Del(ctx, RecipientListKey(userID, prev))
		}
		return
	}
	c.rdb.Del(ctx, RecipientListKey(userID, gen-1))
}

func (c *CachedRecipientStore) Create(ctx context.Context, r *models.Recipient) error {
	if err := c.RecipientStore.Create(ctx, r); err != nil {
		return err
	}
	c.invalidate(ctx, r.User)
	return nil
}

func (c *CachedRecipientStore) DeleteByUser(ctx context.Context, id, userID string) error {
	if err := c.RecipientStore.DeleteByUser(ctx, id, userID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachedRecipientStore) AddStyles(ctx context.Context, id, userID string, styles []string) (*models.Recipient, error) {
	return c.written(ctx, userID)(c.RecipientStore.AddStyles(ctx, id, userID, styles))
}

func (c *CachedRecipientStore) SetPicture(ctx context.Context, id, userID, picture string) (*models.Recipient, error) {
	return c.written(ctx, userID)(c.RecipientStore.SetPicture(ctx, id, userID, picture))
}

func (c *CachedRecipientStore) UpdateByUser(ctx context.Context, id, userID string, fields bson.M) (*models.Recipient, error) {
	return c.written(ctx, userID)(c.RecipientStore.UpdateByUser(ctx, id, userID, fields))
}

// written invalidates userID's list when the wrapped update succeeded.
func (c *CachedRecipientStore) written(ctx context.Context, userID string) func(*models.Recipient, error) (*models.Recipient, error) {
	return func(r *models.Recipient, err error) (*models.Recipient, error) {
		if err == nil {
			c.invalidate(ctx, userID)
		}
		return r, err
	}
}
