package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

// RedisMirror publishes each device update to a Redis hash so a separate
// process (notably the admin API, if deployed standalone) can read a
// shared view of the directory without talking to the pipeline directly.
// It is never the source of truth during a live pipeline run: the
// in-memory Directory always wins when both have an entry.
type RedisMirror struct {
	client *redis.Client
	key    string
}

// NewRedisMirror wraps an existing client; key is the Redis hash name
// devices are stored under (field = device name, value = JSON-encoded
// dev.Device).
func NewRedisMirror(client *redis.Client, key string) *RedisMirror {
	return &RedisMirror{client: client, key: key}
}

// Save upserts a single device's JSON encoding into the hash.
func (r *RedisMirror) Save(d dev.Device) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("directory: encoding device %q: %w", d.Name, err)
	}
	ctx := context.Background()
	return r.client.HSet(ctx, r.key, d.Name, payload).Err()
}

// LoadAll returns every device currently stored in the hash.
func (r *RedisMirror) LoadAll() ([]dev.Device, error) {
	ctx := context.Background()
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("directory: loading redis mirror: %w", err)
	}
	out := make([]dev.Device, 0, len(raw))
	for name, payload := range raw {
		var d dev.Device
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("directory: decoding device %q: %w", name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Get reads a single device by name directly from Redis, used as the
// cross-process fallback when the in-memory Directory has never seen the
// device this run.
func (r *RedisMirror) Get(name string) (dev.Device, bool, error) {
	ctx := context.Background()
	payload, err := r.client.HGet(ctx, r.key, name).Result()
	if err == redis.Nil {
		return dev.Device{}, false, nil
	}
	if err != nil {
		return dev.Device{}, false, fmt.Errorf("directory: reading device %q: %w", name, err)
	}
	var d dev.Device
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return dev.Device{}, false, fmt.Errorf("directory: decoding device %q: %w", name, err)
	}
	return d, true, nil
}
