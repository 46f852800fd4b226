package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncpool "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/gencache/internal/util"
	"github.com/unkn0wn-root/gencache/internal/wire"
)

// RedisOptions configures a redis-backed store.
type RedisOptions struct {
	// Client is the redis connection to use. Required.
	Client goredis.UniversalClient

	// Prefix namespaces all keys. Defaults to "gencache".
	Prefix string

	// LockExpiry is the TTL of the server-exclusive redsync mutex.
	// The store extends it in the background while open. Defaults to 30s.
	LockExpiry time.Duration

	// CloseClient closes the redis client when the store is closed.
	CloseClient bool
}

// Redis stores entries under <prefix>:e:<escaped namespace>:<digest hex>
// and guards the root with a redsync mutex under <prefix>:lock.
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	lockExpiry  time.Duration
	closeClient bool

	mutex *redsync.Mutex

	mu        sync.Mutex
	extendErr error
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRedis builds a redis store. The server lock is not taken until Acquire.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("gencache: redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "gencache"
	}
	if opts.LockExpiry <= 0 {
		opts.LockExpiry = 30 * time.Second
	}
	return &Redis{
		rdb:         opts.Client,
		prefix:      opts.Prefix,
		lockExpiry:  opts.LockExpiry,
		closeClient: opts.CloseClient,
	}, nil
}

func (s *Redis) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutex != nil {
		return nil
	}

	rs := redsync.New(redsyncpool.NewPool(s.rdb))
	m := rs.NewMutex(s.prefix+":lock",
		redsync.WithExpiry(s.lockExpiry),
		redsync.WithTries(1),
	)
	if err := m.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return ErrRootLocked
		}
		return fmt.Errorf("lock store root: %w", err)
	}

	s.mutex = m
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.extendLoop()
	return nil
}

// extendLoop keeps the root mutex alive for the lifetime of the store.
func (s *Redis) extendLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.lockExpiry / 3)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.lockExpiry/3)
			ok, err := s.mutex.ExtendContext(ctx)
			cancel()
			if err == nil && ok {
				continue
			}
			if err == nil {
				err = redsync.ErrExtendFailed
			}
			s.mu.Lock()
			s.extendErr = err
			s.mu.Unlock()
		}
	}
}

func (s *Redis) entryKey(ns string, digest [32]byte) string {
	return s.prefix + ":e:" + util.EscapeNamespace(ns) + ":" + util.DigestHex(digest)
}

func (s *Redis) Put(ctx context.Context, ns string, digest [32]byte, payload []byte) error {
	rec, err := wire.EncodeRecord(wire.Record{Namespace: ns, Digest: digest, Payload: payload})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.entryKey(ns, digest), rec, 0).Err(); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, ns string, digest [32]byte) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.entryKey(ns, digest)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read entry: %w", err)
	}
	rec, err := wire.DecodeRecord(b)
	if err != nil {
		return nil, err
	}
	if rec.Namespace != ns || rec.Digest != digest {
		return nil, wire.ErrCorrupt
	}
	// copy out: the decode aliases the command buffer
	return append([]byte(nil), rec.Payload...), nil
}

func (s *Redis) Delete(ctx context.Context, ns string, digest [32]byte) error {
	if err := s.rdb.Del(ctx, s.entryKey(ns, digest)).Err(); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *Redis) Scan(ctx context.Context, fn func(namespace string, digest [32]byte) error) error {
	var cursor uint64
	match := s.prefix + ":e:*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return fmt.Errorf("scan store: %w", err)
		}
		for _, k := range keys {
			rest := strings.TrimPrefix(k, s.prefix+":e:")
			// namespace may contain ':' after escaping; the digest cannot
			i := strings.LastIndexByte(rest, ':')
			if i < 0 {
				continue
			}
			digest, ok := util.ParseDigestHex(rest[i+1:])
			if !ok {
				continue
			}
			ns, err := util.UnescapeNamespace(rest[:i])
			if err != nil {
				continue
			}
			if err := fn(ns, digest); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Redis) Close() error {
	s.mu.Lock()
	m := s.mutex
	stop := s.stopCh
	err := s.extendErr
	s.mutex = nil
	s.stopCh = nil
	s.mu.Unlock()

	if m != nil {
		close(stop)
		s.wg.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, uerr := m.UnlockContext(ctx)
		cancel()
		if err == nil && uerr != nil && !errors.Is(uerr, redsync.ErrLockAlreadyExpired) {
			err = uerr
		}
	}
	if s.closeClient {
		if cerr := s.rdb.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ EntryStore = (*Redis)(nil)
