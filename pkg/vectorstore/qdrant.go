// Package vectorstore Qdrant REST 向量索引，点 id 直接使用业务主键
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const maxErrorBodyBytes = 1024

type Config struct {
	URL        string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return opErr("config", OperationErrorValidation, "url is required", nil)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return opErr("config", OperationErrorValidation, fmt.Sprintf("invalid url %q", cfg.URL), err)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return opErr("config", OperationErrorValidation, "collection is required", nil)
	}
	if cfg.Dimension <= 0 {
		return opErr("config", OperationErrorValidation, "dimension must be positive", nil)
	}
	return nil
}

type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]interface{}
}

type Match struct {
	ID    uint64
	Score float64
}

type Store struct {
	cfg     Config
	baseURL string
	http    *http.Client

	initMu sync.Mutex
	ready  bool
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func New(cfg Config) (*Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Init 确保集合存在。进程内只成功执行一次，并发调用串行化
func (s *Store) Init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, "collection_info", http.MethodGet, s.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != s.cfg.Dimension {
			return opErr("collection_info", OperationErrorValidation,
				fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.Dimension, size), nil)
		}
	case isStatus(err, http.StatusNotFound):
		req := map[string]interface{}{
			"vectors": map[string]interface{}{
				"size":     s.cfg.Dimension,
				"distance": "Cosine",
			},
		}
		// 其他进程可能同时创建，409 视为成功
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil); err != nil && !isStatus(err, http.StatusConflict) {
			return err
		}
	default:
		return err
	}

	s.ready = true
	return nil
}

func (s *Store) Ready() bool {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.ready
}

func (s *Store) Upsert(ctx context.Context, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		if p.ID == 0 {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) != s.cfg.Dimension {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("point %d dimension mismatch: expected=%d got=%d", p.ID, s.cfg.Dimension, len(p.Vector)), nil)
		}
		payload := p.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		body = append(body, map[string]interface{}{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]interface{}{"points": body}, nil)
}

func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	const op = "search"
	if len(vector) != s.cfg.Dimension {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.Dimension, len(vector)), nil)
	}
	if limit <= 0 {
		limit = 10
	}
	req := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": false,
		"with_vector":  false,
	}
	var raw []struct {
		ID    json.RawMessage `json:"id"`
		Score float64         `json:"score"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(raw))
	for _, item := range raw {
		var id uint64
		if err := json.Unmarshal(item.ID, &id); err != nil || id == 0 {
			continue
		}
		out = append(out, Match{ID: id, Score: item.Score})
	}
	return out, nil
}

func (s *Store) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.cfg.Collection) + suffix
}

func (s *Store) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("body=%q", truncateBody(raw)),
		}
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == code
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
