package storage

import (
	"context"
	"fmt"
	"strings"
)

// Type is the storage engine backing the entity store and the local secret store.
// It is resolved once at startup from configuration.
type Type string

const (
	Bolt        Type = "bolt"
	Redis       Type = "redis"
	DatabaseSQL Type = "postgres"
)

func (t Type) String() string {
	return string(t)
}

// ParseType resolves a configured storage provider name
func ParseType(provider string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(provider))); t {
	case Bolt, Redis, DatabaseSQL:
		return t, nil
	}
	return "", fmt.Errorf("unsupported storage provider: %q", provider)
}

type OptionKey string

type Option struct {
	ID     OptionKey `json:"id,omitempty"`
	Option any       `json:"option,omitempty"`
}

// ServiceStorage describes the api for storage independent of DB providers.
// Read returns nil without error when the key does not exist.
type ServiceStorage interface {
	Type() Type
	URI() string
	IsOpen() bool
	Close() error
	Write(ctx context.Context, namespace, key string, value []byte) error
	// WriteIfAbsent writes the value only when no value exists under the key, atomically with respect to other
	// writers of the same backend. It reports whether the value was written.
	WriteIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error)
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	Exists(ctx context.Context, namespace, key string) (bool, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// NewStorage creates the engine for the given type
func NewStorage(storageType Type, opts ...Option) (ServiceStorage, error) {
	switch storageType {
	case Bolt:
		return NewBoltDB(opts...)
	case Redis:
		return NewRedisDB(opts...)
	case DatabaseSQL:
		return NewSQLDB(opts...)
	}
	return nil, fmt.Errorf("unsupported storage type: %q", storageType)
}

func optionValue[T any](opts []Option, id OptionKey) (T, bool, error) {
	var zero T
	for _, opt := range opts {
		if opt.ID != id {
			continue
		}
		v, ok := opt.Option.(T)
		if !ok {
			return zero, true, fmt.Errorf("option %s must be of type %T, got %T", id, zero, opt.Option)
		}
		return v, true, nil
	}
	return zero, false, nil
}

// MakeNamespace takes a set of possible namespace values and combines them as a convention
func MakeNamespace(ns ...string) string {
	return strings.Join(ns, "-")
}
