package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/testutil"
)

func newBlocker(t *testing.T) (*Blocker, *testutil.FakeDynamo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	fake := testutil.NewFakeDynamo(map[string]string{"blacklist": "ip"})
	b := NewBlocker(fake, "blacklist", rdb, zap.NewNop())
	return b, fake, mr
}

func TestBlock_WritesRecordAndCacheKey(t *testing.T) {
	b, fake, mr := newBlocker(t)
	first := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return first }
	ctx := context.Background()

	if err := b.Block(ctx, "203.0.113.9", "curl/8", "Honeypot Triggered (business_fax)"); err != nil {
		t.Fatalf("block: %v", err)
	}
	b.nowFunc = func() time.Time { return first.Add(time.Hour) }
	if err := b.Block(ctx, "203.0.113.9", "curl/8", "again"); err != nil {
		t.Fatalf("second block must not fail: %v", err)
	}

	if fake.Count("blacklist") != 1 {
		t.Fatalf("expected exactly one record, got %d", fake.Count("blacklist"))
	}
	var e Entry
	if err := attributevalue.UnmarshalMap(fake.Item("blacklist", "203.0.113.9"), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != TypeBotAutomation || e.Reason != "Honeypot Triggered (business_fax)" || !e.BlockedAt.Equal(first) {
		t.Fatalf("unexpected entry %+v", e)
	}

	if v, err := mr.Get("blacklist_203.0.113.9"); err != nil || v != "true" {
		t.Fatalf("expected cache key, got %q %v", v, err)
	}
	if ttl := mr.TTL("blacklist_203.0.113.9"); ttl != CacheTTL {
		t.Fatalf("expected 30 day ttl, got %v", ttl)
	}

	blocked, err := b.IsBlocked(ctx, "203.0.113.9")
	if err != nil || !blocked {
		t.Fatalf("expected blocked, got %v %v", blocked, err)
	}
	blocked, _ = b.IsBlocked(ctx, "198.51.100.1")
	if blocked {
		t.Fatalf("other ips must not be blocked")
	}
}

func TestBlock_DurableFailureIsReturned(t *testing.T) {
	b, fake, _ := newBlocker(t)
	fake.FailWrite = errors.New("dynamo down")
	if err := b.Block(context.Background(), "1.1.1.1", "", "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBlock_CacheFailureIsTolerated(t *testing.T) {
	b, fake, mr := newBlocker(t)
	mr.Close()
	if err := b.Block(context.Background(), "1.1.1.1", "", "x"); err != nil {
		t.Fatalf("cache failure must not fail the block: %v", err)
	}
	if fake.Count("blacklist") != 1 {
		t.Fatalf("durable record must still be written")
	}
	if _, err := b.IsBlocked(context.Background(), "1.1.1.1"); err == nil {
		t.Fatalf("expected cache error to surface from IsBlocked")
	}
}

func TestBlocker_WithoutRedis(t *testing.T) {
	fake := testutil.NewFakeDynamo(map[string]string{"blacklist": "ip"})
	b := NewBlocker(fake, "blacklist", nil, zap.NewNop())
	ctx := context.Background()

	if err := b.Block(ctx, "198.51.100.20", "bot", "Honeypot Triggered (business_fax)"); err != nil {
		t.Fatalf("block without cache: %v", err)
	}
	if fake.Count("blacklist") != 1 {
		t.Fatalf("durable record must still be written")
	}
	blocked, err := b.IsBlocked(ctx, "198.51.100.20")
	if err != nil || blocked {
		t.Fatalf("without a cache nothing is reported blocked, got %v %v", blocked, err)
	}
}
