package replica

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 5 * time.Second

// RedisConfig configures a topology-agnostic Redis connection.
type RedisConfig struct {
	Addrs      []string `yaml:"addrs"`
	MasterName string   `yaml:"master_name"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	// KeyPrefix namespaces the keys of one replica node. Nodes sharing a
	// Redis deployment must use distinct prefixes.
	KeyPrefix string `yaml:"key_prefix"`
}

// DialRedis connects to single-node, Sentinel or Cluster Redis depending on
// the config, and pings it once.
func DialRedis(ctx context.Context, cfg RedisConfig) (goredis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultRedisTimeout,
		ReadTimeout:  defaultRedisTimeout,
		WriteTimeout: defaultRedisTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// upsertIfGreaterScript compares and writes one row atomically.
//
//	KEYS[1] counts hash, KEYS[2] updated-at hash, KEYS[3] video index set
//	ARGV[1] replica id, ARGV[2] count, ARGV[3] updated-at millis, ARGV[4] video id
//
// Counts are compared as canonical decimal strings, length first, because
// Lua numbers are doubles and lose precision above 2^53.
var upsertIfGreaterScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current then
  local incoming = ARGV[2]
  if #current > #incoming or (#current == #incoming and current >= incoming) then
    return 0
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('SADD', KEYS[3], ARGV[4])
return 1
`)

// RedisStore keeps rows in one Redis hash per video, field = replica id and
// value = count, so counters survive a node restart.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. The store takes ownership of the
// client and closes it on Close.
func NewRedisStore(client goredis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "viewsync"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

// All keys share the {prefix} hash tag so the script stays in one slot on
// Redis Cluster.
func (r *RedisStore) keyCounts(videoID int64) string {
	return fmt.Sprintf("{%s}:video_views:%d", r.prefix, videoID)
}

func (r *RedisStore) keyUpdated(videoID int64) string {
	return fmt.Sprintf("{%s}:video_views_updated:%d", r.prefix, videoID)
}

func (r *RedisStore) keyIndex() string {
	return fmt.Sprintf("{%s}:videos", r.prefix)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, ErrStorage, err)
}

func (r *RedisStore) Get(ctx context.Context, videoID int64, replicaID string) (Row, bool, error) {
	pipe := r.client.Pipeline()
	countCmd := pipe.HGet(ctx, r.keyCounts(videoID), replicaID)
	updatedCmd := pipe.HGet(ctx, r.keyUpdated(videoID), replicaID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return Row{}, false, storageErr("get", err)
	}

	raw, err := countCmd.Result()
	if errors.Is(err, goredis.Nil) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, storageErr("get", err)
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return Row{}, false, storageErr("parse count", err)
	}
	return Row{
		VideoID:   videoID,
		ReplicaID: replicaID,
		Count:     count,
		UpdatedAt: parseMillis(updatedCmd.Val()),
	}, true, nil
}

func (r *RedisStore) UpsertIfGreater(ctx context.Context, row Row) (bool, error) {
	updatedAt := row.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	changed, err := upsertIfGreaterScript.Run(ctx, r.client,
		[]string{r.keyCounts(row.VideoID), r.keyUpdated(row.VideoID), r.keyIndex()},
		row.ReplicaID,
		strconv.FormatUint(row.Count, 10),
		strconv.FormatInt(updatedAt.UnixMilli(), 10),
		strconv.FormatInt(row.VideoID, 10),
	).Int64()
	if err != nil {
		return false, storageErr("upsert", err)
	}
	return changed == 1, nil
}

func (r *RedisStore) ListForVideo(ctx context.Context, videoID int64) ([]Row, error) {
	pipe := r.client.Pipeline()
	countsCmd := pipe.HGetAll(ctx, r.keyCounts(videoID))
	updatedCmd := pipe.HGetAll(ctx, r.keyUpdated(videoID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storageErr("list", err)
	}

	counts := countsCmd.Val()
	updated := updatedCmd.Val()
	rows := make([]Row, 0, len(counts))
	for replicaID, raw := range counts {
		count, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, storageErr("parse count", err)
		}
		rows = append(rows, Row{
			VideoID:   videoID,
			ReplicaID: replicaID,
			Count:     count,
			UpdatedAt: parseMillis(updated[replicaID]),
		})
	}
	SortRows(rows)
	return rows, nil
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]Row, error) {
	members, err := r.client.SMembers(ctx, r.keyIndex()).Result()
	if err != nil {
		return nil, storageErr("index", err)
	}

	var rows []Row
	for _, member := range members {
		videoID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		videoRows, err := r.ListForVideo(ctx, videoID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, videoRows...)
	}
	SortRows(rows)
	return rows, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseMillis(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
