// Package sshpool manages pooled SSH connections to fleet hosts: one
// *ssh.Client per host key, a per-host concurrency semaphore, idle/lifetime
// eviction, sliding-window rate limiting, and a hash-only audit trail.
package sshpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// ErrPoolClosed is returned by Acquire once Close has been called.
var ErrPoolClosed = errors.New("sshpool: pool is closed")

// PoolConfig carries the pool tuning knobs out of config.Config by value,
// so the pool never has to hold (or copy) the process config's mutex.
type PoolConfig struct {
	MaxConcurrentPerHost int
	MaxIdle              time.Duration
	MaxLifetime          time.Duration
	RateLimitPerMinute   int
	RateLimitPerHour     int
}

// PoolConfigFromConfig extracts a PoolConfig snapshot from a process Config.
func PoolConfigFromConfig(cfg *config.Config) PoolConfig {
	return PoolConfig{
		MaxConcurrentPerHost: cfg.MaxConcurrentPerHost,
		MaxIdle:              cfg.MaxIdle,
		MaxLifetime:          cfg.MaxLifetime,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
		RateLimitPerHour:     cfg.RateLimitPerHour,
	}
}

// Credentials resolves the private key material and host-key verification
// policy for a host. Kept as an interface so tests can substitute in-memory
// values without touching the filesystem, an agent socket, or a real
// known_hosts file.
type Credentials interface {
	SignerFor(h config.Host) (ssh.Signer, error)
	HostKeyCallbackFor(h config.Host) (ssh.HostKeyCallback, error)
}

// entry is one pooled connection and its bookkeeping.
type entry struct {
	client     *ssh.Client
	host       config.Host
	sem        chan struct{}
	createdAt  time.Time
	lastUsedAt time.Time
	inUse      int
	mu         sync.Mutex
}

// Session wraps an *ssh.Session checked out from the pool. Callers must
// call Release when done, regardless of whether the command succeeded.
type Session struct {
	*ssh.Session
	host  config.Host
	entry *entry
	pool  *Pool
}

// Pool is an explicit, constructor-injected connection pool. A Pool is
// never a global: every component that needs SSH access takes one as a
// dependency.
type Pool struct {
	cfg    PoolConfig
	creds  Credentials
	logger *observability.Logger
	limits *RateLimiter
	audit  *AuditLog

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	stopReaper context.CancelFunc
}

// New builds a Pool. cfg supplies MaxConcurrentPerHost/MaxIdle/MaxLifetime/
// RateLimitPerMinute/RateLimitPerHour; audit may be nil to disable logging.
func New(cfg PoolConfig, creds Credentials, logger *observability.Logger, audit *AuditLog) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		creds:      creds,
		logger:     logger,
		limits:     NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitPerHour),
		audit:      audit,
		entries:    make(map[string]*entry),
		stopReaper: cancel,
	}
	go p.reap(ctx)
	go p.keepalive(ctx)
	return p
}

func key(h config.Host) string {
	return fmt.Sprintf("%s@%s:%d", h.User, h.Hostname, h.Port)
}

// Acquire checks out a session against host, dialing and/or pooling the
// underlying client as needed, blocking on the per-host semaphore until a
// slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context, h config.Host) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	k := key(h)
	e, ok := p.entries[k]
	if !ok {
		var err error
		e, err = p.dial(h)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.entries[k] = e
	}
	p.mu.Unlock()

	if !p.limits.Allow(h.Hostname, time.Now()) {
		return nil, ErrRateLimited
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		// Cap saturation is a quota condition, not a transport failure:
		// surfacing it as ErrRateLimited routes the caller into bounded
		// backoff instead of the transport retry/rollback path.
		return nil, fmt.Errorf("%w: concurrency cap for %s: %v", ErrRateLimited, h.Hostname, ctx.Err())
	}

	e.mu.Lock()
	if e.client == nil {
		e.mu.Unlock()
		<-e.sem
		return nil, errors.New("sshpool: connection entry closed concurrently")
	}
	sess, err := e.client.NewSession()
	if err != nil {
		e.mu.Unlock()
		<-e.sem
		return nil, fmt.Errorf("sshpool: new session to %s: %w", h.Hostname, err)
	}
	e.lastUsedAt = time.Now()
	e.inUse++
	e.mu.Unlock()

	return &Session{Session: sess, host: h, entry: e, pool: p}, nil
}

// Release closes the underlying SSH session and frees its concurrency
// slot. success/runErr are forwarded to the audit log against cmd.
func (p *Pool) Release(s *Session, cmd string, success bool, runErr error) {
	s.Session.Close()

	s.entry.mu.Lock()
	s.entry.inUse--
	s.entry.mu.Unlock()
	<-s.entry.sem

	if p.audit != nil {
		if err := p.audit.Record(s.host.Hostname, s.host.User, cmd, success, runErr); err != nil && p.logger != nil {
			p.logger.Error("sshpool: audit write failed", zap.Error(err))
		}
	}
}

func (p *Pool) dial(h config.Host) (*entry, error) {
	signer, err := p.creds.SignerFor(h)
	if err != nil {
		return nil, fmt.Errorf("sshpool: resolve signer for %s: %w", h.Hostname, err)
	}
	hostKeyCallback, err := p.creds.HostKeyCallbackFor(h)
	if err != nil {
		return nil, fmt.Errorf("sshpool: resolve host key policy for %s: %w", h.Hostname, err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            h.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", h.Hostname, h.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("sshpool: dial %s: %w", addr, err)
	}

	maxConcurrent := p.cfg.MaxConcurrentPerHost
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	now := time.Now()
	return &entry{
		client:     client,
		host:       h,
		sem:        make(chan struct{}, maxConcurrent),
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

// reap evicts idle and over-age connections on a ticker.
func (p *Pool) reap(ctx context.Context) {
	interval := p.cfg.MaxIdle
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evictStale()
		}
	}
}

// keepalive probes each pooled client with an OpenSSH keepalive request; a
// client that fails the probe is torn down so the next Acquire redials
// instead of inheriting a dead TCP connection.
func (p *Pool) keepalive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			clients := make(map[string]*entry, len(p.entries))
			for k, e := range p.entries {
				clients[k] = e
			}
			p.mu.Unlock()

			for k, e := range clients {
				e.mu.Lock()
				client := e.client
				e.mu.Unlock()
				if client == nil {
					continue
				}
				if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
					client.Close()
					p.mu.Lock()
					if cur, ok := p.entries[k]; ok && cur == e {
						delete(p.entries, k)
					}
					p.mu.Unlock()
					if p.logger != nil {
						p.logger.Warn("sshpool: keepalive failed, dropping connection", zap.String("host_key", k))
					}
				}
			}
		}
	}
}

func (p *Pool) evictStale() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	for k, e := range p.entries {
		e.mu.Lock()
		idleTooLong := p.cfg.MaxIdle > 0 && now.Sub(e.lastUsedAt) > p.cfg.MaxIdle
		tooOld := p.cfg.MaxLifetime > 0 && now.Sub(e.createdAt) > p.cfg.MaxLifetime
		inUse := e.inUse > 0
		e.mu.Unlock()

		if inUse || (!idleTooLong && !tooOld) {
			continue
		}

		e.client.Close()
		delete(p.entries, k)
		if p.logger != nil {
			p.logger.Info("sshpool: evicted stale connection", zap.String("host_key", k))
		}
	}
}

// Close shuts down the reaper and every pooled client. Closing a client
// also ends any session still checked out on it; that session's Release
// call still frees its slot.
func (p *Pool) Close() error {
	p.stopReaper()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for k, e := range p.entries {
		if err := e.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.entries, k)
	}
	if p.audit != nil {
		if err := p.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats reports the current size of the pool, mainly for health checks.
func (p *Pool) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := make(map[string]int, len(p.entries))
	for k, e := range p.entries {
		e.mu.Lock()
		stats[k] = e.inUse
		e.mu.Unlock()
	}
	return stats
}
