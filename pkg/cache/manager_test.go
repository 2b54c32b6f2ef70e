package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
// Unit tests use a local Redis on DB 15 and skip when it is not running;
// tests/integration covers the same paths against a testcontainers Redis.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testKey() IndexKey {
	return IndexKey{Tenant: "acme", Subject: "jdoe", Platform: "linkedin"}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Hour)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", manager.ttl)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, 0)
}

func TestManager_Fingerprint_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	_, err := manager.Fingerprint(context.Background(), testKey())
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_RebuildAndContains(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)
	ctx := context.Background()
	key := testKey()

	fp := Fingerprint{Size: 512, ModTime: time.Now().Truncate(time.Second)}
	if err := manager.Rebuild(ctx, key, fp, []string{"1700\x1fAda", "1600\x1fGrace"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	stored, err := manager.Fingerprint(ctx, key)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if !stored.Equal(&fp) {
		t.Errorf("Stored fingerprint %+v does not match %+v", stored, fp)
	}
	if stored.Members != 2 {
		t.Errorf("Members = %d, want 2", stored.Members)
	}

	found, err := manager.Contains(ctx, key, "1700\x1fAda")
	if err != nil || !found {
		t.Errorf("Contains(Ada) = %v, %v; want true, nil", found, err)
	}
	found, err = manager.Contains(ctx, key, "1700\x1fAlan")
	if err != nil || found {
		t.Errorf("Contains(Alan) = %v, %v; want false, nil", found, err)
	}
}

func TestManager_RebuildReplacesMembers(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()
	key := testKey()

	if err := manager.Rebuild(ctx, key, Fingerprint{Size: 1}, []string{"old"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if err := manager.Rebuild(ctx, key, Fingerprint{Size: 2}, []string{"new"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if found, _ := manager.Contains(ctx, key, "old"); found {
		t.Error("Rebuild should drop members of the previous document")
	}
	if found, _ := manager.Contains(ctx, key, "new"); !found {
		t.Error("Rebuild should add members of the current document")
	}
}

func TestManager_RebuildEmpty(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)
	ctx := context.Background()
	key := testKey()

	if err := manager.Rebuild(ctx, key, Fingerprint{Size: 15}, nil); err != nil {
		t.Fatalf("Rebuild with no members failed: %v", err)
	}
	if _, err := manager.Fingerprint(ctx, key); err != nil {
		t.Errorf("Fingerprint should exist for an empty index, got %v", err)
	}
	if found, _ := manager.Contains(ctx, key, "anything"); found {
		t.Error("Empty index must not contain members")
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)
	ctx := context.Background()
	key := testKey()

	if err := manager.Rebuild(ctx, key, Fingerprint{Size: 1}, []string{"a"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := manager.Fingerprint(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}
