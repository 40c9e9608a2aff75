package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Memory keeps preferences in process.
type Memory struct {
	mu sync.Mutex
	p  Preferences
}

// Load implements Store.
func (m *Memory) Load(context.Context) (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clonePrefs(m.p), nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = clonePrefs(p)
	return nil
}

func clonePrefs(p Preferences) Preferences {
	return Preferences{
		OptedIn:             append([]string(nil), p.OptedIn...),
		OptedOut:            append([]string(nil), p.OptedOut...),
		FlaggedCreativeSets: append([]string(nil), p.FlaggedCreativeSets...),
	}
}

// FileStore keeps preferences in a JSON file, replaced atomically on save.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at path. A missing file loads as empty.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (f *FileStore) Load(context.Context) (Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("reading preferences: %w", err)
	}
	var p Preferences
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return p, nil
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, p Preferences) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*")
	if err != nil {
		return fmt.Errorf("creating temp preferences file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}

// RedisStore keeps each list in a Redis set under the profile's prefix.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a store for profileID.
func NewRedisStore(client redis.Cmdable, profileID string) *RedisStore {
	return &RedisStore{client: client, prefix: fmt.Sprintf("adserving:prefs:%s:", profileID)}
}

func (r *RedisStore) keys() (optedIn, optedOut, flagged string) {
	return r.prefix + "opted_in", r.prefix + "opted_out", r.prefix + "flagged"
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (Preferences, error) {
	in, out, flagged := r.keys()
	var p Preferences
	for _, f := range []struct {
		key string
		dst *[]string
	}{{in, &p.OptedIn}, {out, &p.OptedOut}, {flagged, &p.FlaggedCreativeSets}} {
		members, err := r.client.SMembers(ctx, f.key).Result()
		if err != nil {
			return Preferences{}, fmt.Errorf("redis smembers %s: %w", f.key, err)
		}
		*f.dst = members
	}
	return p, nil
}

// Save implements Store. The three sets are replaced in one transaction.
func (r *RedisStore) Save(ctx context.Context, p Preferences) error {
	in, out, flagged := r.keys()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, in, out, flagged)
		add := func(key string, members []string) {
			if len(members) == 0 {
				return
			}
			args := make([]interface{}, len(members))
			for i, m := range members {
				args[i] = m
			}
			pipe.SAdd(ctx, key, args...)
		}
		add(in, p.OptedIn)
		add(out, p.OptedOut)
		add(flagged, p.FlaggedCreativeSets)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save preferences: %w", err)
	}
	return nil
}
