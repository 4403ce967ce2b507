package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PostgREST 透传的 PostgreSQL 错误码
const (
	// 批量函数中 RAISE ... USING ERRCODE = 'P0002'
	notFoundCode = "P0002"
	// 主键冲突
	uniqueViolationCode = "23505"
)

// SupabaseStore 通过 Supabase REST API 访问 documents 表
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseStore 创建 Supabase 存储实例
func NewSupabaseStore(baseURL, key string) *SupabaseStore {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}

	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// documentRow documents 表的行结构
type documentRow struct {
	Path       string    `json:"path"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Fields     Fields    `json:"fields"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r documentRow) document() Document {
	return Document{ID: r.ID, Path: r.Path, Fields: r.Fields, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// apiError PostgREST 错误响应
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s %s", e.Status, e.Code, e.Message)
}

// makeRequest 发送HTTP请求到Supabase
func (s *SupabaseStore) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/rest/v1"+endpoint, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}

	// 设置请求头
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		switch apiErr.Code {
		case notFoundCode:
			return nil, errors.Wrap(ErrNotFound, apiErr.Message)
		case uniqueViolationCode:
			return nil, errors.Wrap(ErrAlreadyExists, apiErr.Message)
		}
		return nil, apiErr
	}

	return respBody, nil
}

// Query 查询集合，排序在客户端完成
func (s *SupabaseStore) Query(ctx context.Context, collection, sortField string) ([]Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	data, err := s.makeRequest(ctx, http.MethodGet, "/documents?select=*&collection=eq."+url.QueryEscape(collection), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}

	var rows []documentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "decode documents")
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	sortDocuments(docs, sortField)
	return docs, nil
}

// Create 创建文档
func (s *SupabaseStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := s.insert(ctx, collection, id, fields); err != nil {
		return "", errors.Wrapf(err, "create document in %s", collection)
	}
	return id, nil
}

// CreateAt 在指定路径创建文档，主键冲突映射为 ErrAlreadyExists
func (s *SupabaseStore) CreateAt(ctx context.Context, path string, fields Fields) error {
	collection, id, err := SplitDocumentPath(path)
	if err != nil {
		return err
	}
	if err := s.insert(ctx, collection, id, fields); err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	return nil
}

func (s *SupabaseStore) insert(ctx context.Context, collection, id string, fields Fields) error {
	payload := map[string]interface{}{
		"path":       JoinPath(collection, id),
		"collection": collection,
		"id":         id,
		"fields":     mergeFields(nil, fields),
	}
	_, err := s.makeRequest(ctx, http.MethodPost, "/documents", payload)
	return err
}

// Get 读取文档
func (s *SupabaseStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return Document{}, err
	}

	data, err := s.makeRequest(ctx, http.MethodGet, "/documents?select=*&path=eq."+url.QueryEscape(path), nil)
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s", path)
	}
	var rows []documentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return Document{}, errors.Wrap(err, "decode document")
	}
	if len(rows) == 0 {
		return Document{}, errors.Wrapf(ErrNotFound, "get %s", path)
	}
	return rows[0].document(), nil
}

// Update 部分更新文档（通过批量函数以获得合并语义）
func (s *SupabaseStore) Update(ctx context.Context, path string, fields Fields) error {
	return s.Batch(ctx, []Op{UpdateOp(path, fields)})
}

// Delete 删除文档
func (s *SupabaseStore) Delete(ctx context.Context, path string) error {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return err
	}
	if _, err := s.makeRequest(ctx, http.MethodDelete, "/documents?path=eq."+url.QueryEscape(path), nil); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	return nil
}

// Batch 调用 apply_document_batch，函数在单个事务内执行
func (s *SupabaseStore) Batch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	payload := make([]Op, 0, len(ops))
	for _, op := range ops {
		if _, _, err := SplitDocumentPath(op.Path); err != nil {
			return err
		}
		if op.Kind != OpUpdate && op.Kind != OpDelete {
			return errors.Errorf("unknown batch operation %q", op.Kind)
		}
		if op.Kind == OpUpdate {
			op.Fields = stripReserved(op.Fields)
		}
		payload = append(payload, op)
	}

	if _, err := s.makeRequest(ctx, http.MethodPost, "/rpc/apply_document_batch", map[string]interface{}{"ops": payload}); err != nil {
		return errors.Wrap(err, "apply batch")
	}
	return nil
}

// HealthCheck 健康检查
func (s *SupabaseStore) HealthCheck(ctx context.Context) error {
	_, err := s.makeRequest(ctx, http.MethodGet, "/documents?select=path&limit=1", nil)
	return err
}

// Close 关闭连接
func (s *SupabaseStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
