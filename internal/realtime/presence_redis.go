package realtime

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/gema-messenger/internal/dto"
)

const presenceNodeField = "node:"

// RedisPresenceStore keeps one hash per online user plus a set of online user ids.
// Each node writes its own session count into the user's hash, so a user stays
// online until every node has cleared its field.
type RedisPresenceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisPresenceStore returns nil when client is nil.
func NewRedisPresenceStore(client *redis.Client, channelBase string) PresenceStore {
	if client == nil {
		return nil
	}
	return &RedisPresenceStore{client: client, prefix: channelBase + ":presence"}
}

func (s *RedisPresenceStore) userKey(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisPresenceStore) onlineKey() string {
	return s.prefix + ":online"
}

func (s *RedisPresenceStore) Online(ctx context.Context, userID, nodeID string, meta dto.PresenceMeta) error {
	key := s.userKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "joined_at", meta.JoinedAt.UTC().Format(time.RFC3339Nano))
		pipe.HSet(ctx, key, "username", meta.Username, presenceNodeField+nodeID, meta.Sessions)
		pipe.SAdd(ctx, s.onlineKey(), userID)
		return nil
	})
	return err
}

func (s *RedisPresenceStore) Offline(ctx context.Context, userID, nodeID string) error {
	key := s.userKey(userID)
	if err := s.client.HDel(ctx, key, presenceNodeField+nodeID).Err(); err != nil {
		return err
	}

	fields, err := s.client.HKeys(ctx, key).Result()
	if err != nil {
		return err
	}
	for _, field := range fields {
		if strings.HasPrefix(field, presenceNodeField) {
			return nil
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.onlineKey(), userID)
		return nil
	})
	return err
}

func (s *RedisPresenceStore) List(ctx context.Context) (map[string]dto.PresenceMeta, error) {
	userIDs, err := s.client.SMembers(ctx, s.onlineKey()).Result()
	if err != nil {
		return nil, err
	}

	users := make(map[string]dto.PresenceMeta, len(userIDs))
	for _, userID := range userIDs {
		fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}

		meta := dto.PresenceMeta{Username: fields["username"]}
		if joined, err := time.Parse(time.RFC3339Nano, fields["joined_at"]); err == nil {
			meta.JoinedAt = joined
		}
		for field, value := range fields {
			if !strings.HasPrefix(field, presenceNodeField) {
				continue
			}
			if sessions, err := strconv.Atoi(value); err == nil {
				meta.Sessions += sessions
			}
		}
		if meta.Sessions == 0 {
			continue
		}
		users[userID] = meta
	}
	return users, nil
}
