package db

import (
	"context"
	"testing"
	"time"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", PoolOptions{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpen_RejectsMalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz", PoolOptions{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpen_GivesUpWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Open(ctx, "postgres://u:p@127.0.0.1:1/db?connect_timeout=1", PoolOptions{
		PingAttempts: 2,
		PingDelay:    10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected ping failure")
	}
}
