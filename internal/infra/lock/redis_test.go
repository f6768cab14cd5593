package lock

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("set LEDGER_TEST_REDIS_ADDRESS to run redis lock tests")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, addr)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	l := logrus.New()
	l.SetOutput(io.Discard)
	locker := NewRedisLocker(rdb, 2*time.Second, logrus.NewEntry(l))
	locker.wait = 200 * time.Millisecond

	key := "test-driver-salary:" + time.Now().Format(time.RFC3339Nano)
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := locker.Lock(ctx, key); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected second lock to fail, got %v", err)
	}
	unlock()

	unlock2, err := locker.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	unlock2()
}
