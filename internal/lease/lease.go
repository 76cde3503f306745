// internal/lease/lease.go
//
// Run-overlap protection. The cron trigger gives no guarantee that a
// run finishes before the next fires, so the coordinator takes a named
// lease with a TTL before touching any campaign. An expired lease can
// be stolen, which covers a crashed run.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Lease interface {
	// Acquire takes the named lease for ttl. acquired=false means a
	// live holder exists.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, acquired bool, err error)
	// Release frees the lease if token still owns it.
	Release(ctx context.Context, name, token string) error
}

// PostgresLease keeps leases in a table so the guarantee holds across
// processes.
type PostgresLease struct {
	DB *sqlx.DB
}

func (l *PostgresLease) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	query := `
        INSERT INTO leases (name, owner, expires_at)
        VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
        ON CONFLICT (name) DO UPDATE
        SET owner=EXCLUDED.owner, expires_at=EXCLUDED.expires_at
        WHERE leases.expires_at < NOW()
    `
	res, err := l.DB.ExecContext(ctx, query, name, token, ttl.Seconds())
	if err != nil {
		return "", false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}
	return token, true, nil
}

func (l *PostgresLease) Release(ctx context.Context, name, token string) error {
	_, err := l.DB.ExecContext(ctx, `DELETE FROM leases WHERE name=$1 AND owner=$2`, name, token)
	return err
}

// MemoryLease is the in-process implementation for tests and
// single-node deployments.
type MemoryLease struct {
	mu    sync.Mutex
	held  map[string]string
	until map[string]time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{held: map[string]string{}, until: map[string]time.Time{}}
}

func (l *MemoryLease) Acquire(_ context.Context, name string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok && time.Now().Before(l.until[name]) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[name] = token
	l.until[name] = time.Now().Add(ttl)
	return token, true, nil
}

func (l *MemoryLease) Release(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] == token {
		delete(l.held, name)
		delete(l.until, name)
	}
	return nil
}

var _ Lease = (*PostgresLease)(nil)
var _ Lease = (*MemoryLease)(nil)
