package lease

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLeaseAcquireAndRelease(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()

	token, acquired, err := l.Acquire(ctx, "run", time.Minute)
	if err != nil || !acquired || token == "" {
		t.Fatalf("first acquire: token=%q acquired=%v err=%v", token, acquired, err)
	}

	if _, acquired, _ := l.Acquire(ctx, "run", time.Minute); acquired {
		t.Fatal("second acquire succeeded while lease held")
	}

	if err := l.Release(ctx, "run", token); err != nil {
		t.Fatal(err)
	}
	if _, acquired, _ := l.Acquire(ctx, "run", time.Minute); !acquired {
		t.Fatal("acquire failed after release")
	}
}

func TestMemoryLeaseExpiredIsStolen(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()

	if _, acquired, _ := l.Acquire(ctx, "run", -time.Second); !acquired {
		t.Fatal("setup acquire failed")
	}
	// the first holder's TTL is already in the past
	if _, acquired, _ := l.Acquire(ctx, "run", time.Minute); !acquired {
		t.Fatal("expired lease not stolen")
	}
}

func TestMemoryLeaseReleaseWrongToken(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()

	_, acquired, _ := l.Acquire(ctx, "run", time.Minute)
	if !acquired {
		t.Fatal("setup acquire failed")
	}
	if err := l.Release(ctx, "run", "not-the-owner"); err != nil {
		t.Fatal(err)
	}
	// lease still held: a stale release must not free someone else's run
	if _, acquired, _ := l.Acquire(ctx, "run", time.Minute); acquired {
		t.Fatal("wrong-token release freed the lease")
	}
}

func TestMemoryLeaseNamesAreIndependent(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()

	if _, acquired, _ := l.Acquire(ctx, "run-a", time.Minute); !acquired {
		t.Fatal("acquire run-a failed")
	}
	if _, acquired, _ := l.Acquire(ctx, "run-b", time.Minute); !acquired {
		t.Fatal("holding run-a blocked run-b")
	}
}
