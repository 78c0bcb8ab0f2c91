// Package account resolves owner identities to wallet account ids. The
// directory lives in the wallet service; the transaction service reads it over
// HTTP and caches hits in redis.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"wallettx/internal/logging"
	"wallettx/internal/repositories/cache"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrDirectoryFailure  = errors.New("account directory unavailable")
	ErrDirectoryResponse = errors.New("unexpected account directory response")
)

// Directory resolution statuses.
const (
	StatusFound    = "FOUND"
	StatusNotFound = "NOT_FOUND"
)

// ResolvePath is the wallet service endpoint answering resolutions.
const ResolvePath = "/internal/accounts/resolve"

// Resolver maps an owner identity to an account id. It never mutates anything.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (string, error)
}

// Resolution is the body returned by the directory endpoint.
type Resolution struct {
	Status    string `json:"status"`
	AccountID string `json:"accountId,omitempty"`
}

// DirectoryClient calls the wallet service directory with basic auth.
type DirectoryClient struct {
	baseURL  string
	user     string
	password string
	timeout  time.Duration
}

func NewDirectoryClient(baseURL, user, password string, timeout time.Duration) *DirectoryClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		timeout:  timeout,
	}
}

func (c *DirectoryClient) Resolve(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", ErrAccountNotFound
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Get(c.baseURL + ResolvePath + "?identity=" + url.QueryEscape(identity))
	agent.BasicAuth(c.user, c.password)
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %w", ErrDirectoryFailure, errors.Join(errs...))
	}

	var res Resolution
	switch code {
	case fiber.StatusOK:
		if err := json.Unmarshal(body, &res); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDirectoryResponse, err)
		}
		if res.Status != StatusFound || res.AccountID == "" {
			return "", fmt.Errorf("%w: status %q", ErrDirectoryResponse, res.Status)
		}
		return res.AccountID, nil
	case fiber.StatusNotFound:
		return "", ErrAccountNotFound
	default:
		return "", fmt.Errorf("%w: http %d", ErrDirectoryFailure, code)
	}
}

// CachedResolver serves repeated resolutions from redis. Only hits are cached.
type CachedResolver struct {
	next   Resolver
	cache  *cache.CacheService
	logger *zap.Logger
}

func NewCachedResolver(next Resolver, c *cache.CacheService, logger *zap.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		cache:  c,
		logger: logging.OrNop(logger).Named("account"),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, identity string) (string, error) {
	acct, found, err := r.cache.GetAccount(ctx, identity)
	if err != nil {
		r.logger.Warn("account cache read failed", zap.String("identity", identity), zap.Error(err))
	}
	if found {
		return acct.AccountID, nil
	}

	accountID, err := r.next.Resolve(ctx, identity)
	if err != nil {
		return "", err
	}

	if err := r.cache.CacheAccount(ctx, cache.ResolvedAccount{Identity: identity, AccountID: accountID}); err != nil {
		r.logger.Warn("account cache write failed", zap.String("identity", identity), zap.Error(err))
	}
	return accountID, nil
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, identity string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}
