package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// PgAdvisoryLocker uses session-level advisory locks. The lock lives as long
// as the dedicated connection it was taken on, so a crashed holder frees it
// when its session ends.
type PgAdvisoryLocker struct {
	pool *pgxpool.Pool
}

func NewPgAdvisoryLocker(pool *pgxpool.Pool) *PgAdvisoryLocker {
	return &PgAdvisoryLocker{pool: pool}
}

func (l *PgAdvisoryLocker) TryAcquire(ctx context.Context, name string) (Lease, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	key := advisoryKey(name)
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock %q: %w", name, err)
	}
	if !ok {
		conn.Release()
		return nil, fmt.Errorf("lock %q: %w", name, domain.ErrConcurrentRun)
	}

	return &pgLease{conn: conn, key: key, owner: uuid.NewString()}, nil
}

// advisoryKey maps a lock name onto the bigint keyspace.
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

type pgLease struct {
	conn  *pgxpool.Conn
	key   int64
	owner string
	once  sync.Once
	err   error
}

func (p *pgLease) Owner() string { return p.owner }

func (p *pgLease) Release(ctx context.Context) error {
	p.once.Do(func() {
		defer p.conn.Release()
		if _, err := p.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, p.key); err != nil {
			// the session still holds the lock; drop it with the connection
			_ = p.conn.Conn().Close(ctx)
			p.err = fmt.Errorf("advisory unlock: %w", err)
		}
	})
	return p.err
}
