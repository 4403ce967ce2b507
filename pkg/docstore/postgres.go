package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Schema 文档表结构以及供 Supabase RPC 使用的批量函数
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    path        TEXT PRIMARY KEY,
    collection  TEXT NOT NULL,
    id          TEXT NOT NULL,
    fields      JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS documents_collection_created_idx
    ON documents (collection, created_at);

CREATE OR REPLACE FUNCTION apply_document_batch(ops JSONB) RETURNS VOID AS $$
DECLARE
    op JSONB;
    affected INT;
BEGIN
    FOR op IN SELECT * FROM jsonb_array_elements(ops) LOOP
        IF op->>'kind' = 'delete' THEN
            DELETE FROM documents WHERE path = op->>'path';
        ELSIF op->>'kind' = 'update' THEN
            UPDATE documents
               SET fields = fields || COALESCE(op->'fields', '{}'::jsonb),
                   updated_at = clock_timestamp()
             WHERE path = op->>'path';
            GET DIAGNOSTICS affected = ROW_COUNT;
            IF affected = 0 THEN
                RAISE EXCEPTION 'document not found: %', op->>'path' USING ERRCODE = 'P0002';
            END IF;
        ELSE
            RAISE EXCEPTION 'unknown batch operation: %', op->>'kind';
        END IF;
    END LOOP;
END;
$$ LANGUAGE plpgsql;
`

// PostgresStore PostgreSQL 文档存储实现
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewPostgresStore 创建 PostgreSQL 存储实例
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	log := logrus.WithField("component", "docstore.postgres")

	// 尝试多种连接策略来解决 Vercel Lambda 的 IPv6 问题
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			log.WithError(err).Warnf("strategy %d failed to open", i+1)
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			log.WithError(err).Warnf("strategy %d failed to ping", i+1)
			db.Close()
			lastErr = err
			continue
		}

		log.Infof("connection established with strategy %d", i+1)
		return &PostgresStore{db: db, log: log}, nil
	}

	return nil, errors.Wrap(lastErr, "connect to PostgreSQL with all strategies")
}

// NewPostgresStoreFromDB 使用已有连接创建存储
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, log: logrus.WithField("component", "docstore.postgres")}
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		return dsn + separator + params
	}
	// key=value 形式的 DSN
	return dsn + " " + strings.ReplaceAll(params, "&", " ")
}

// Migrate 创建文档表与批量函数
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "apply document schema")
	}
	return nil
}

// Query 查询集合，按字段排序
func (s *PostgresStore) Query(ctx context.Context, collection, sortField string) ([]Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	query := `SELECT id, path, fields, created_at, updated_at FROM documents WHERE collection = $1`
	args := []interface{}{collection}
	switch sortField {
	case "", FieldCreatedAt:
		query += ` ORDER BY created_at, id`
	case FieldUpdatedAt:
		query += ` ORDER BY updated_at, created_at, id`
	case FieldID:
		query += ` ORDER BY id`
	default:
		query += ` ORDER BY fields -> $2 ASC NULLS FIRST, created_at, id`
		args = append(args, sortField)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.ID, &d.Path, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan document")
		}
		if err := json.Unmarshal(raw, &d.Fields); err != nil {
			return nil, errors.Wrapf(err, "decode fields of %s", d.Path)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s", collection)
	}
	return docs, nil
}

// Create 创建文档
func (s *PostgresStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := s.insert(ctx, collection, id, fields); err != nil {
		return "", errors.Wrapf(err, "create document in %s", collection)
	}
	return id, nil
}

// CreateAt 在指定路径创建文档，依靠主键冲突保证路径唯一
func (s *PostgresStore) CreateAt(ctx context.Context, path string, fields Fields) error {
	collection, id, err := SplitDocumentPath(path)
	if err != nil {
		return err
	}
	if err := s.insert(ctx, collection, id, fields); err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, collection, id string, fields Fields) error {
	raw, err := json.Marshal(mergeFields(nil, fields))
	if err != nil {
		return errors.Wrap(err, "encode fields")
	}

	query := `
		INSERT INTO documents (path, collection, id, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, clock_timestamp(), clock_timestamp())
		ON CONFLICT (path) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, JoinPath(collection, id), collection, id, raw)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get 读取文档
func (s *PostgresStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return Document{}, err
	}

	var d Document
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, fields, created_at, updated_at FROM documents WHERE path = $1`, path,
	).Scan(&d.ID, &d.Path, &raw, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return Document{}, errors.Wrapf(ErrNotFound, "get %s", path)
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s", path)
	}
	if err := json.Unmarshal(raw, &d.Fields); err != nil {
		return Document{}, errors.Wrapf(err, "decode fields of %s", path)
	}
	return d, nil
}

// Update 部分更新文档
func (s *PostgresStore) Update(ctx context.Context, path string, fields Fields) error {
	return s.Batch(ctx, []Op{UpdateOp(path, fields)})
}

// Delete 删除文档
func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []Op{DeleteOp(path)})
}

// Batch 在单个事务中执行全部操作
func (s *PostgresStore) Batch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if _, _, err := SplitDocumentPath(op.Path); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, op.Path); err != nil {
				return errors.Wrapf(err, "delete %s", op.Path)
			}
		case OpUpdate:
			raw, err := json.Marshal(stripReserved(op.Fields))
			if err != nil {
				return errors.Wrap(err, "encode fields")
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE documents
				   SET fields = fields || $2::jsonb, updated_at = clock_timestamp()
				 WHERE path = $1
			`, op.Path, raw)
			if err != nil {
				return errors.Wrapf(err, "update %s", op.Path)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "rows affected")
			}
			if n == 0 {
				return errors.Wrapf(ErrNotFound, "update %s", op.Path)
			}
		default:
			return errors.Errorf("unknown batch operation %q", op.Kind)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	return nil
}

// HealthCheck 健康检查
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
