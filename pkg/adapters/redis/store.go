package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const (
	fieldPkgName     = "pkg_name"
	fieldSessionName = "session_name"
)

// bindScript writes the owner hash and the index entry only if the channel has
// no owner yet. Returns 0 when the channel is taken.
var bindScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4])
redis.call("ZADD", KEYS[2], ARGV[5], ARGV[5])
return 1
`)

// Store implements ports.ChannelStore using Redis, so several broker replicas
// resolve channel owners from one table.
//
// Each channel is a hash at <prefix>channel:<type>:<id>; the bound ids of a
// type are indexed in the sorted set <prefix>index:<type> scored by id. Ids
// are drawn from the counter <prefix>seq:<type>.
type Store struct {
	client *backend.Client
	prefix string
}

var _ ports.ChannelStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix for channel records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "softbus:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying redis client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(key domain.ChannelKey) string {
	return fmt.Sprintf("%schannel:%s:%d", s.prefix, key.Type, key.ID)
}

func (s *Store) indexKey(t domain.ChannelType) string {
	return s.prefix + "index:" + t.String()
}

func (s *Store) seqKey(t domain.ChannelType) string {
	return s.prefix + "seq:" + t.String()
}

func checkKey(key domain.ChannelKey) error {
	if !key.Type.Valid() || key.ID < 0 {
		return fmt.Errorf("%w: channel %s", domain.ErrInvalidParam, key)
	}
	return nil
}

// Allocate draws the next id of type t from the shared counter, starting at 0.
func (s *Store) Allocate(ctx context.Context, t domain.ChannelType) (int32, error) {
	if !t.Valid() {
		return domain.InvalidChannelID, fmt.Errorf("%w: channel type %s", domain.ErrInvalidParam, t)
	}
	n, err := s.client.Incr(ctx, s.seqKey(t)).Result()
	if err != nil {
		return domain.InvalidChannelID, fmt.Errorf("failed to allocate %s channel: %w", t, err)
	}
	if n < 1 || n-1 > math.MaxInt32 {
		return domain.InvalidChannelID, fmt.Errorf("%s channel ids exhausted (counter at %d)", t, n)
	}
	return int32(n - 1), nil
}

// Bind records the owner of key. It fails with domain.ErrChannelBound if
// another owner, possibly on another replica, holds the key.
func (s *Store) Bind(ctx context.Context, key domain.ChannelKey, pkgName, sessionName string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	id := strconv.FormatInt(int64(key.ID), 10)
	ok, err := bindScript.Run(ctx, s.client,
		[]string{s.key(key), s.indexKey(key.Type)},
		fieldPkgName, pkgName, fieldSessionName, sessionName, id,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to bind channel %s: %w", key, err)
	}
	if ok == 0 {
		return fmt.Errorf("channel %s: %w", key, domain.ErrChannelBound)
	}
	return nil
}

// Unbind removes key. Unknown keys are ignored.
func (s *Store) Unbind(ctx context.Context, key domain.ChannelKey) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(key.Type), strconv.FormatInt(int64(key.ID), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unbind channel %s: %w", key, err)
	}
	return nil
}

// Lookup resolves key.
func (s *Store) Lookup(ctx context.Context, key domain.ChannelKey) (string, string, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), fieldPkgName, fieldSessionName).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", "", fmt.Errorf("channel %s: %w", key, domain.ErrNotFound)
		}
		return "", "", fmt.Errorf("failed to get channel %s: %w", key, err)
	}
	pkgName, _ := vals[0].(string)
	sessionName, _ := vals[1].(string)
	if pkgName == "" && sessionName == "" {
		return "", "", fmt.Errorf("channel %s: %w", key, domain.ErrNotFound)
	}
	return pkgName, sessionName, nil
}

// List returns the ids bound under t in ascending order.
func (s *Store) List(ctx context.Context, t domain.ChannelType) ([]int32, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(t), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	ids := make([]int32, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("corrupt channel index entry %q: %w", m, err)
		}
		ids = append(ids, int32(id))
	}
	return ids, nil
}

// Resolver returns the NameResolver of one channel type.
func (s *Store) Resolver(t domain.ChannelType) ports.NameResolver {
	return ports.TypedResolver{Store: s, Type: t}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
