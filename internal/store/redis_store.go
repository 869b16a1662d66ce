package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document as a JSON string and indexes collections in
// a sorted set scored by creation time. Updates use WATCH/MULTI so that a
// concurrent writer aborts the transaction instead of overwriting.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Host     string
	Port     uint16
	User     string
	Password string
	DB       int
	// Prefix namespaces every key; defaults to "gigescrow".
	Prefix string
}

type redisDocument struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Host == "" {
		return nil, errors.New("redis host is empty")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "gigescrow"
	}
	client := redis.NewClient(&redis.Options{
		ClientName: prefix,
		Addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username:   cfg.User,
		Password:   cfg.Password,
		DB:         cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:doc:%s", r.prefix, collection, id)
}

func (r *RedisStore) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s", r.prefix, collection)
}

func (r *RedisStore) Create(ctx context.Context, collection string, data json.RawMessage) (Document, error) {
	return r.Insert(ctx, collection, uuid.NewString(), data)
}

// Insert claims the document key with SETNX before indexing it, so a losing
// insert never touches the collection index.
func (r *RedisStore) Insert(ctx context.Context, collection, id string, data json.RawMessage) (Document, error) {
	if err := checkID(id); err != nil {
		return Document{}, err
	}
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	doc := Document{ID: id, Version: 1, Data: cloneRaw(data), CreatedAt: now, UpdatedAt: now}
	blob, err := encodeRedis(doc)
	if err != nil {
		return Document{}, err
	}
	ok, err := r.client.SetNX(ctx, r.docKey(collection, id), blob, 0).Result()
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, ErrAlreadyExists
	}
	seq, err := r.client.Incr(ctx, r.indexKey(collection)+":seq").Result()
	if err != nil {
		return Document{}, err
	}
	if err := r.client.ZAdd(ctx, r.indexKey(collection), redis.Z{Score: float64(seq), Member: id}).Err(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := r.client.Get(ctx, r.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return decodeRedis(raw)
}

func (r *RedisStore) Update(ctx context.Context, collection, id string, data json.RawMessage, expectedVersion int64) (Document, error) {
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	key := r.docKey(collection, id)
	var updated Document
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := decodeRedis(raw)
		if err != nil {
			return err
		}
		if doc.Version != expectedVersion {
			return ErrVersionConflict
		}
		doc.Version++
		doc.Data = cloneRaw(data)
		doc.UpdatedAt = time.Now().UTC()
		blob, err := encodeRedis(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, blob, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = doc
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return Document{}, ErrVersionConflict
	}
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

func (r *RedisStore) Query(ctx context.Context, collection string, filters []Filter, order Order) ([]Document, error) {
	if err := checkFields(filters, order); err != nil {
		return nil, err
	}
	ids, err := r.client.ZRange(ctx, r.indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(collection, id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := decodeRedis([]byte(s))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return filterAndSort(docs, filters, order), nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeRedis(d Document) ([]byte, error) {
	return json.Marshal(redisDocument{
		ID:        d.ID,
		Version:   d.Version,
		Data:      d.Data,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	})
}

func decodeRedis(raw []byte) (Document, error) {
	var rd redisDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return Document{
		ID:        rd.ID,
		Version:   rd.Version,
		Data:      rd.Data,
		CreatedAt: rd.CreatedAt,
		UpdatedAt: rd.UpdatedAt,
	}, nil
}
