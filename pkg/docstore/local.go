package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const localFileName = "documents.json"

// LocalStore 本地文档存储实现。
// dataDir 为空时只保存在内存中（测试与临时环境使用）。
type LocalStore struct {
	dataDir string

	mu       sync.RWMutex
	docs     map[string]*record
	lastTime time.Time
	now      func() time.Time
}

// NewLocalStore 创建本地存储实例，并加载 dataDir 中已有的数据
func NewLocalStore(dataDir string) (*LocalStore, error) {
	s := &LocalStore{
		dataDir: dataDir,
		docs:    make(map[string]*record),
		now:     time.Now,
	}
	if dataDir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		// 只读文件系统（如 Vercel）退回到临时目录
		logrus.WithError(err).Warn("failed to create data directory, falling back to temp dir")
		dataDir = filepath.Join(os.TempDir(), "hud-data")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, errors.Wrap(err, "create data directory")
		}
		s.dataDir = dataDir
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore 创建纯内存存储
func NewMemoryStore() *LocalStore {
	s, _ := NewLocalStore("")
	return s
}

// Query 查询集合
func (s *LocalStore) Query(ctx context.Context, collection, sortField string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := make([]Document, 0)
	for _, r := range s.docs {
		if r.Collection == collection {
			docs = append(docs, r.document())
		}
	}
	s.mu.RUnlock()

	sortDocuments(docs, sortField)
	return docs, nil
}

// Create 创建文档
func (s *LocalStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := s.insert(collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// CreateAt 在指定路径创建文档
func (s *LocalStore) CreateAt(ctx context.Context, path string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, id, err := SplitDocumentPath(path)
	if err != nil {
		return err
	}
	return s.insert(collection, id, fields)
}

// Get 读取文档
func (s *LocalStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if _, _, err := SplitDocumentPath(path); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[path]
	if !ok {
		return Document{}, errors.Wrapf(ErrNotFound, "get %s", path)
	}
	return r.document(), nil
}

// Update 部分更新文档
func (s *LocalStore) Update(ctx context.Context, path string, fields Fields) error {
	return s.Batch(ctx, []Op{UpdateOp(path, fields)})
}

// Delete 删除文档
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []Op{DeleteOp(path)})
}

// Batch 原子批量写入：先在副本上执行全部操作，成功后一次性替换
func (s *LocalStore) Batch(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged, _, err := applyOps(ops, s.tick(), func(path string) (*record, error) {
		return s.docs[path], nil
	})
	if err != nil {
		return err
	}

	next := s.snapshot()
	for path, r := range staged {
		if r == nil {
			delete(next, path)
		} else {
			next[path] = r
		}
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.docs = next
	return nil
}

// HealthCheck 健康检查
func (s *LocalStore) HealthCheck(ctx context.Context) error {
	if s.dataDir == "" {
		return nil
	}
	if _, err := os.Stat(s.dataDir); os.IsNotExist(err) {
		return errors.Errorf("data directory does not exist: %s", s.dataDir)
	}
	return nil
}

// Close 关闭连接（本地存储无需关闭）
func (s *LocalStore) Close() error {
	return nil
}

// SetClock 替换时间源（测试使用）
func (s *LocalStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.lastTime = time.Time{}
}

// 私有辅助方法

// insert 写入新文档，路径已存在时返回 ErrAlreadyExists
func (s *LocalStore) insert(collection, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := JoinPath(collection, id)
	if _, ok := s.docs[path]; ok {
		return errors.Wrapf(ErrAlreadyExists, "create %s", path)
	}
	now := s.tick()
	next := s.snapshot()
	next[path] = &record{
		ID:         id,
		Collection: collection,
		Fields:     mergeFields(nil, fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.docs = next
	return nil
}

// tick 返回严格晚于上一次的时间戳，调用方需持有 s.mu
func (s *LocalStore) tick() time.Time {
	now := s.now().UTC()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Nanosecond)
	}
	s.lastTime = now
	return now
}

func (s *LocalStore) snapshot() map[string]*record {
	next := make(map[string]*record, len(s.docs)+1)
	for k, v := range s.docs {
		next[k] = v
	}
	return next
}

func (s *LocalStore) filePath() string {
	return filepath.Join(s.dataDir, localFileName)
}

func (s *LocalStore) load() error {
	data, err := os.ReadFile(s.filePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read local store")
	}

	var records []*record
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.Wrap(err, "decode local store")
	}
	for _, r := range records {
		s.docs[JoinPath(r.Collection, r.ID)] = r
		if r.CreatedAt.After(s.lastTime) {
			s.lastTime = r.CreatedAt
		}
		if r.UpdatedAt.After(s.lastTime) {
			s.lastTime = r.UpdatedAt
		}
	}
	return nil
}

// persist 用完整文档集替换数据文件（临时文件 + rename）
func (s *LocalStore) persist(docs map[string]*record) error {
	if s.dataDir == "" {
		return nil
	}

	records := make([]*record, 0, len(docs))
	for _, r := range docs {
		records = append(records, r)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode local store")
	}

	tmp := s.filePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "write local store")
	}
	if err := os.Rename(tmp, s.filePath()); err != nil {
		return errors.Wrap(err, "replace local store")
	}
	return nil
}
