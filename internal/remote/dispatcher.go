// Package remote talks to the authority the change queue is replayed against.
package remote

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

	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"go.uber.org/zap"
)

type Category string

const (
	CategorySuccess     Category = "success"
	CategoryClientError Category = "client_error"
	CategoryServerError Category = "server_error"
	CategoryTransport   Category = "transport_error"
	CategoryTimeout     Category = "timeout"
)

type Request struct {
	Method         string
	Path           string
	Body           json.RawMessage
	IdempotencyKey string
}

type Result struct {
	Success    bool
	StatusCode int
	Category   Category
}

// Dispatcher pushes one change to the remote endpoint.
type Dispatcher interface {
	Send(ctx context.Context, req Request) (Result, error)
}

// RequestFor maps a queue entry onto the remote REST resource:
// insert -> POST /{table}, update -> PUT /{table}/{key},
// delete -> DELETE /{table}/{key}.
func RequestFor(e *model.SyncEntry) (Request, error) {
	body := e.RawPayload()
	if !json.Valid(body) {
		return Request{}, fmt.Errorf("entry %d: payload is not valid JSON", e.ID)
	}

	base := "/" + url.PathEscape(e.TableName)
	req := Request{IdempotencyKey: e.IdempotencyKey}

	switch e.Operation {
	case model.OpInsert:
		req.Method = http.MethodPost
		req.Path = base
		req.Body = body
	case model.OpUpdate, model.OpDelete:
		if e.RecordKey == "" {
			return Request{}, fmt.Errorf("entry %d: %s without record key", e.ID, e.Operation)
		}
		req.Path = base + "/" + url.PathEscape(e.RecordKey)
		if e.Operation == model.OpUpdate {
			req.Method = http.MethodPut
			req.Body = body
		} else {
			req.Method = http.MethodDelete
		}
	default:
		return Request{}, fmt.Errorf("entry %d: unknown operation %q", e.ID, e.Operation)
	}
	return req, nil
}

type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
	logger  logger.ZapLogger
}

func NewHTTPDispatcher(baseURL string, client *http.Client, log logger.ZapLogger) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  log,
	}
}

// Send never retries; the coordinator owns retry policy. Timeouts come from
// ctx.
func (d *HTTPDispatcher) Send(ctx context.Context, req Request) (Result, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, d.baseURL+req.Path, body)
	if err != nil {
		return Result{Category: CategoryTransport}, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Category: CategoryTimeout}, err
		}
		return Result{Category: CategoryTransport}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res := Result{StatusCode: resp.StatusCode, Category: categorize(resp.StatusCode)}
	res.Success = res.Category == CategorySuccess
	if !res.Success {
		d.logger.Debug("remote rejected change",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
		)
	}
	return res, nil
}

func categorize(status int) Category {
	switch {
	case status >= 200 && status < 300:
		return CategorySuccess
	case status >= 400 && status < 500:
		return CategoryClientError
	default:
		return CategoryServerError
	}
}
