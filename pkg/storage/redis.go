package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	PONG               = "PONG"
	RedisScanBatchSize = 1000
	namespaceSeparator = ":"

	RedisAddressOption OptionKey = "redis-address-option"
	PasswordOption     OptionKey = "storage-password-option"
)

type RedisDB struct {
	db *goredislib.Client
}

func NewRedisDB(opts ...Option) (*RedisDB, error) {
	address, _, err := optionValue[string](opts, RedisAddressOption)
	if err != nil {
		return nil, err
	}
	if address == "" {
		return nil, errors.New("redis address option is required")
	}
	password, _, err := optionValue[string](opts, PasswordOption)
	if err != nil {
		return nil, err
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     address,
		Password: password,
	})
	if err = redisotel.InstrumentTracing(client); err != nil {
		return nil, errors.Wrap(err, "instrumenting redis tracing")
	}
	return &RedisDB{db: client}, nil
}

func (b *RedisDB) Type() Type {
	return Redis
}

func (b *RedisDB) URI() string {
	return b.db.Options().Addr
}

func (b *RedisDB) IsOpen() bool {
	pong, err := b.db.Ping(context.Background()).Result()
	if err != nil {
		logrus.WithError(err).Error("pinging redis")
		return false
	}
	return pong == PONG
}

func (b *RedisDB) Close() error {
	return b.db.Close()
}

func (b *RedisDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	// Zero expiration means the key has no expiration time.
	return b.db.Set(ctx, getRedisKey(namespace, key), value, 0).Err()
}

func (b *RedisDB) WriteIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error) {
	return b.db.SetNX(ctx, getRedisKey(namespace, key), value, 0).Result()
}

func (b *RedisDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	res, err := b.db.Get(ctx, getRedisKey(namespace, key)).Bytes()
	if errors.Is(err, goredislib.Nil) {
		return nil, nil
	}
	return res, err
}

func (b *RedisDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	keys, err := b.readAllKeys(ctx, namespace)
	if err != nil {
		return nil, errors.Wrap(err, "read all keys error")
	}

	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := b.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "getting multiple keys")
	}
	if len(keys) != len(values) {
		return nil, errors.New("key length does not match value length")
	}

	prefix := namespace + namespaceSeparator
	for i, val := range values {
		// a key may have been deleted between scan and get
		s, ok := val.(string)
		if !ok {
			continue
		}
		result[strings.TrimPrefix(keys[i], prefix)] = []byte(s)
	}
	return result, nil
}

func (b *RedisDB) readAllKeys(ctx context.Context, namespace string) ([]string, error) {
	var cursor uint64
	allKeys := make([]string, 0)
	match := namespace + namespaceSeparator + "*"
	for {
		keys, nextCursor, err := b.db.Scan(ctx, cursor, match, RedisScanBatchSize).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scan error")
		}
		allKeys = append(allKeys, keys...)
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return allKeys, nil
}

func (b *RedisDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	n, err := b.db.Exists(ctx, getRedisKey(namespace, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisDB) Delete(ctx context.Context, namespace, key string) error {
	return b.db.Del(ctx, getRedisKey(namespace, key)).Err()
}

func (b *RedisDB) DeleteNamespace(ctx context.Context, namespace string) error {
	keys, err := b.readAllKeys(ctx, namespace)
	if err != nil {
		return errors.Wrap(err, "read all keys error")
	}
	if len(keys) == 0 {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return b.db.Del(ctx, keys...).Err()
}

func getRedisKey(namespace, key string) string {
	return namespace + namespaceSeparator + key
}
