package remote

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Oracle answers whether the remote authority is currently reachable.
type Oracle interface {
	IsOnline(ctx context.Context) bool
}

// Pinger pings the remote and caches the answer for ttl. Any HTTP response
// below 500 counts as online.
type Pinger struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	online    bool
	checkedAt time.Time
}

func NewPinger(baseURL, path string, ttl time.Duration, client *http.Client) *Pinger {
	if client == nil {
		client = &http.Client{}
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Pinger{
		url:     strings.TrimRight(baseURL, "/") + path,
		client:  client,
		ttl:     ttl,
		timeout: 3 * time.Second,
		now:     time.Now,
	}
}

func (p *Pinger) IsOnline(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checkedAt.IsZero() && p.now().Sub(p.checkedAt) < p.ttl {
		return p.online
	}
	p.online = p.ping(ctx)
	p.checkedAt = p.now()
	return p.online
}

// Invalidate forces the next IsOnline to ping.
func (p *Pinger) Invalidate() {
	p.mu.Lock()
	p.checkedAt = time.Time{}
	p.mu.Unlock()
}

func (p *Pinger) ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode < 500
}

// Static is an oracle whose answer is set by hand: forced offline mode and
// tests.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Set(online bool)                 { s.online.Store(online) }
func (s *Static) IsOnline(_ context.Context) bool { return s.online.Load() }
