// Package redisstore keeps token pairs in Redis. Each pair is a hash keyed by
// id, with two index keys keyed by a BLAKE3 digest of each token.
package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const (
	saveStatusDuplicate int64 = 0
	saveStatusSaved     int64 = 1

	revokeStatusNotFound int64 = 0
	revokeStatusAlready  int64 = 1
	revokeStatusRevoked  int64 = 2
)

const savePairScript = `
if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "subject_id", ARGV[2],
  "access_token", ARGV[3],
  "refresh_token", ARGV[4],
  "blacklisted", "0",
  "created_at", ARGV[5],
  "expires_at", ARGV[6])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
local ttl = tonumber(ARGV[7])
if ttl and ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`

var savePairLua = redis.NewScript(savePairScript)

const revokePairScript = `
local current = redis.call("HGET", KEYS[1], "blacklisted")
if not current then
  return 0
end
if current == "1" then
  return 1
end
redis.call("HSET", KEYS[1], "blacklisted", "1")
return 2
`

var revokePairLua = redis.NewScript(revokePairScript)

// Options configures a TokenRepository
type Options struct {
	// Prefix namespaces every key. Defaults to "tp:".
	Prefix string

	// Retention is how long a pair is kept after its refresh token expires.
	// Zero keeps pairs forever.
	Retention time.Duration
}

// TokenRepository implements repositories.TokenRepository on Redis
type TokenRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewTokenRepository creates a new Redis-backed token repository
func NewTokenRepository(client redis.UniversalClient, opts Options, logger *zap.Logger) *TokenRepository {
	if opts.Prefix == "" {
		opts.Prefix = "tp:"
	}
	return &TokenRepository{
		client:    client,
		prefix:    opts.Prefix,
		retention: opts.Retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *TokenRepository) seqKey() string {
	return r.prefix + "seq"
}

func (r *TokenRepository) pairKey(id int64) string {
	return r.prefix + "pair:" + strconv.FormatInt(id, 10)
}

func (r *TokenRepository) accessKey(token string) string {
	return r.prefix + "access:" + digest(token)
}

func (r *TokenRepository) refreshKey(token string) string {
	return r.prefix + "refresh:" + digest(token)
}

func digest(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Save allocates an id and stores the pair and both indexes atomically
func (r *TokenRepository) Save(ctx context.Context, pair *models.TokenPair) error {
	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return repositories.StoreError("allocate token pair id", err)
	}

	status, err := savePairLua.Run(ctx, r.client,
		[]string{r.pairKey(id), r.accessKey(pair.AccessToken), r.refreshKey(pair.RefreshToken)},
		id,
		pair.SubjectID.String(),
		pair.AccessToken,
		pair.RefreshToken,
		pair.CreatedAt.UTC().Format(time.RFC3339Nano),
		pair.ExpiresAt.UTC().Format(time.RFC3339Nano),
		r.ttlFor(pair.ExpiresAt).Milliseconds(),
	).Int64()
	if err != nil {
		return repositories.StoreError("save token pair", err)
	}
	if status == saveStatusDuplicate {
		return repositories.ErrDuplicateToken
	}

	pair.ID = id
	pair.Blacklisted = false
	r.logger.Debug("token pair saved", zap.Int64("id", id), zap.String("subject_id", pair.SubjectID.String()))
	return nil
}

// ttlFor returns zero when pairs are kept forever
func (r *TokenRepository) ttlFor(expiresAt time.Time) time.Duration {
	if r.retention <= 0 {
		return 0
	}
	ttl := expiresAt.Add(r.retention).Sub(r.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

// FindByAccessToken retrieves a pair by its access token
func (r *TokenRepository) FindByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error) {
	return r.findByIndex(ctx, r.accessKey(accessToken))
}

// FindByRefreshToken retrieves a pair by its refresh token
func (r *TokenRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	return r.findByIndex(ctx, r.refreshKey(refreshToken))
}

func (r *TokenRepository) findByIndex(ctx context.Context, indexKey string) (*models.TokenPair, error) {
	id, err := r.client.Get(ctx, indexKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repositories.ErrNotFound
		}
		return nil, repositories.StoreError("find token pair", err)
	}

	fields, err := r.client.HGetAll(ctx, r.pairKey(id)).Result()
	if err != nil {
		return nil, repositories.StoreError("load token pair", err)
	}
	if len(fields) == 0 {
		return nil, repositories.ErrNotFound
	}

	pair, err := decodePair(fields)
	if err != nil {
		return nil, repositories.StoreError("decode token pair", err)
	}
	return pair, nil
}

// TryRevoke flips blacklisted inside a script so concurrent callers serialize
func (r *TokenRepository) TryRevoke(ctx context.Context, id int64) error {
	status, err := revokePairLua.Run(ctx, r.client, []string{r.pairKey(id)}).Int64()
	if err != nil {
		return repositories.StoreError("revoke token pair", err)
	}

	switch status {
	case revokeStatusRevoked:
		r.logger.Debug("token pair revoked", zap.Int64("id", id))
		return nil
	case revokeStatusAlready:
		return repositories.ErrAlreadyRevoked
	default:
		return repositories.ErrNotFound
	}
}

// IsAccessTokenBlacklisted reports whether the access token may no longer be used
func (r *TokenRepository) IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	return repositories.AccessTokenBlacklisted(ctx, r, accessToken)
}

// PurgeExpired scans pair hashes and deletes those that expired before the cutoff
func (r *TokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	iter := r.client.Scan(ctx, 0, r.prefix+"pair:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		vals, err := r.client.HMGet(ctx, key, "expires_at", "access_token", "refresh_token").Result()
		if err != nil {
			return purged, repositories.StoreError("read token pair", err)
		}

		expiresRaw, _ := vals[0].(string)
		expiresAt, err := time.Parse(time.RFC3339Nano, expiresRaw)
		if err != nil || !expiresAt.Before(before) {
			continue
		}

		access, _ := vals[1].(string)
		refresh, _ := vals[2].(string)
		if err := r.client.Del(ctx, key, r.accessKey(access), r.refreshKey(refresh)).Err(); err != nil {
			return purged, repositories.StoreError("delete token pair", err)
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, repositories.StoreError("scan token pairs", err)
	}

	r.logger.Info("expired token pairs purged", zap.Int64("count", purged), zap.Time("before", before))
	return purged, nil
}

// Ping checks connectivity for readiness probes
func (r *TokenRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodePair(fields map[string]string) (*models.TokenPair, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, err
	}
	subject, err := uuid.Parse(fields["subject_id"])
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, err
	}
	expires, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		ID:           id,
		SubjectID:    subject,
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		Blacklisted:  fields["blacklisted"] == "1",
		CreatedAt:    created,
		ExpiresAt:    expires,
	}, nil
}
