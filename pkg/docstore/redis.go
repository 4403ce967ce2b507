package docstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore Redis 文档存储实现。
// 每个文档保存为 doc:{path} 下的 JSON，集合成员保存在 col:{collection} 集合中。
type RedisStore struct {
	rdb *redis.Client
	log *logrus.Entry

	mu       sync.Mutex
	lastTime time.Time
}

// NewRedisStore 连接 Redis 并创建存储实例
func NewRedisStore(addr string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}

	s := NewRedisStoreFromClient(rdb)
	s.log.WithField("addr", addr).Info("connected to redis")
	return s, nil
}

// NewRedisStoreFromClient 使用已有客户端创建存储
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, log: logrus.WithField("component", "docstore.redis")}
}

func docKey(path string) string        { return "doc:" + path }
func collectionKey(coll string) string { return "col:" + coll }

// Query 查询集合
func (s *RedisStore) Query(ctx context.Context, collection, sortField string) ([]Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	ids, err := s.rdb.SMembers(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list members of %s", collection)
	}
	docs := make([]Document, 0, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(JoinPath(collection, id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "load documents of %s", collection)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// 成员存在但文档已被并发删除
			continue
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", keys[i])
		}
		docs = append(docs, r.document())
	}

	sortDocuments(docs, sortField)
	return docs, nil
}

// Create 创建文档（文档与集合成员在同一个 MULTI/EXEC 中写入）
func (s *RedisStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := s.insert(ctx, collection, id, fields); err != nil {
		return "", errors.Wrapf(err, "create document in %s", collection)
	}
	return id, nil
}

// CreateAt 在指定路径创建文档，依靠 SETNX 保证路径唯一
func (s *RedisStore) CreateAt(ctx context.Context, path string, fields Fields) error {
	collection, id, err := SplitDocumentPath(path)
	if err != nil {
		return err
	}
	if err := s.insert(ctx, collection, id, fields); err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	return nil
}

func (s *RedisStore) insert(ctx context.Context, collection, id string, fields Fields) error {
	now := s.tick()
	r := &record{
		ID:         id,
		Collection: collection,
		Fields:     mergeFields(nil, fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}

	// 文档已存在时集合成员也已存在，SADD 不产生变化
	var created *redis.BoolCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, docKey(JoinPath(collection, id)), raw, 0)
		pipe.SAdd(ctx, collectionKey(collection), id)
		return nil
	})
	if err != nil {
		return err
	}
	if !created.Val() {
		return ErrAlreadyExists
	}
	return nil
}

// Get 读取文档
func (s *RedisStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return Document{}, err
	}
	r, err := s.load(ctx, s.rdb, path)
	if err != nil {
		return Document{}, err
	}
	if r == nil {
		return Document{}, errors.Wrapf(ErrNotFound, "get %s", path)
	}
	return r.document(), nil
}

// Update 部分更新文档
func (s *RedisStore) Update(ctx context.Context, path string, fields Fields) error {
	return s.Batch(ctx, []Op{UpdateOp(path, fields)})
}

// Delete 删除文档
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []Op{DeleteOp(path)})
}

// Batch 在 WATCH 保护下读取涉及的文档，计算结果后用 MULTI/EXEC 一次写入。
// 被并发修改时返回错误，不做重试。
func (s *RedisStore) Batch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ops))
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if _, _, err := SplitDocumentPath(op.Path); err != nil {
			return err
		}
		if !seen[op.Path] {
			seen[op.Path] = true
			keys = append(keys, docKey(op.Path))
		}
	}

	now := s.tick()
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		staged, order, err := applyOps(ops, now, func(path string) (*record, error) {
			return s.load(ctx, tx, path)
		})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, path := range order {
				collection, id, _ := SplitDocumentPath(path)
				r := staged[path]
				if r == nil {
					pipe.Del(ctx, docKey(path))
					pipe.SRem(ctx, collectionKey(collection), id)
					continue
				}
				raw, err := json.Marshal(r)
				if err != nil {
					return errors.Wrap(err, "encode document")
				}
				pipe.Set(ctx, docKey(path), raw, 0)
			}
			return nil
		})
		return err
	}, keys...)

	if err == redis.TxFailedErr {
		return errors.Wrap(err, "batch aborted by concurrent write")
	}
	if err != nil {
		return errors.Wrap(err, "apply batch")
	}
	return nil
}

// HealthCheck 健康检查
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) load(ctx context.Context, c redis.Cmdable, path string) (*record, error) {
	raw, err := c.Get(ctx, docKey(path)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) tick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Nanosecond)
	}
	s.lastTime = now
	return now
}

func decodeRecord(raw string) (*record, error) {
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
