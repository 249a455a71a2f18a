package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/config"
)

// ResponseStore holds encoded responses for the cache middleware.
type ResponseStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
	// Purge drops every entry whose key starts with prefix.
	Purge(ctx context.Context, prefix string) error
}

// RedisStore keeps responses in Redis so every instance shares them.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	bs, err := s.rdb.Get(ctx, key).Bytes()
	return bs, err == nil
}

func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	_ = s.rdb.SetEx(ctx, key, payload, ttl).Err()
}

func (s *RedisStore) Purge(ctx context.Context, prefix string) error {
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// LocalStore keeps responses in process memory. It is used when Redis is
// unavailable.
type LocalStore struct {
	c *gocache.Cache
}

func NewLocalStore(defaultTTL, cleanup time.Duration) *LocalStore {
	return &LocalStore{c: gocache.New(defaultTTL, cleanup)}
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	bs, ok := v.([]byte)
	return bs, ok
}

func (s *LocalStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	s.c.Set(key, payload, ttl)
}

func (s *LocalStore) Purge(_ context.Context, prefix string) error {
	for k := range s.c.Items() {
		if strings.HasPrefix(k, prefix) {
			s.c.Delete(k)
		}
	}
	return nil
}

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// cacheKeyFrom uses the request path rather than the route pattern so
// /api/apartment/1 and /api/apartment/2 get separate entries.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	parts := []string{"path", r.URL.Path}
	if strings.ToLower(cfg.KeyStrategy) != "route" {
		parts = append(parts, "q", r.URL.Query().Encode())
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// cachedHeaders describe the body itself. Per-request headers such as
// X-Request-Id, and anything set by outer middleware, are left to the
// current request.
var cachedHeaders = []string{
	echo.HeaderContentType,
	"Content-Language",
	"Content-Disposition",
	"Etag",
	echo.HeaderLastModified,
}

func representationHeaders(h http.Header) http.Header {
	out := make(http.Header, len(cachedHeaders))
	for _, k := range cachedHeaders {
		if vals := h.Values(k); len(vals) > 0 {
			out[k] = append([]string(nil), vals...)
		}
	}
	return out
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// ResponseCache serves cached 200 responses for the configured methods and
// stores fresh ones. Responses larger than MaxBodyBytes are not stored.
func ResponseCache(cfg config.CacheConfig, store ResponseStore) echo.MiddlewareFunc {
	if !cfg.Enabled || store == nil {
		return passthrough
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, ok := store.Get(ctx, key); ok {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range representationHeaders(hdr) {
						c.Response().Header()[k] = vals
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if cw.status == http.StatusOK && (maxBody <= 0 || cw.size <= maxBody) {
				hdr := representationHeaders(c.Response().Header())
				if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
					store.Set(context.Background(), key, payload, cfg.TTL)
				}
			}
			return nil
		}
	}
}

// PurgeOnWrite drops every cached response after a successful write so
// readers never see a listing that was just changed or deleted.
func PurgeOnWrite(cfg config.CacheConfig, store ResponseStore, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || store == nil {
		return passthrough
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil && c.Response().Status < http.StatusBadRequest {
				if perr := store.Purge(context.Background(), cfg.Prefix+":"); perr != nil {
					log.Warn("cache purge failed", zap.Error(perr))
				}
			}
			return err
		}
	}
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
