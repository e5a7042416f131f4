// Package redisstore keeps the document tree in Redis. Documents are JSON
// strings and each collection level is indexed by a set of child names, so
// listing a collection never scans the keyspace.
package redisstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/redis/go-redis/v9"

	"github.com/aretw0/expipe/pkg/adapters/tree"
	"github.com/aretw0/expipe/pkg/core"
)

// Client implements tree.Nodes on a Redis database.
// The client is safe for concurrent use. Writes are not isolated from each
// other: two processes rewriting the same document race, last write wins.
type Client struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// NewClient creates a client for the given namespace.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - prefix: namespace for every key (must not be empty)
//
// Returns an error if prefix is empty.
func NewClient(redisOpts *redis.Options, prefix string, logger *slog.Logger) (*Client, error) {
	if prefix == "" {
		return nil, fmt.Errorf("prefix cannot be empty")
	}
	return &Client{
		rdb:    redis.NewClient(redisOpts),
		prefix: prefix,
		logger: logger,
	}, nil
}

// Open connects, checks the connection and wraps the client into a tree
// backend.
func Open(ctx context.Context, redisOpts *redis.Options, prefix string, logger *slog.Logger, opts ...tree.Option) (*tree.Backend, *Client, error) {
	c, err := NewClient(redisOpts, prefix, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("redis unreachable: %w", err)
	}
	if logger != nil {
		opts = append([]tree.Option{tree.WithLogger(logger)}, opts...)
	}
	return tree.New(c, opts...), c, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Load implements tree.Nodes. Numbers are decoded as json.Number and
// normalised by the codec.
func (c *Client) Load(ctx context.Context, path []string) (any, bool, error) {
	if len(path) == 0 {
		return nil, false, nil
	}
	data, err := c.rdb.Get(ctx, DocKey(c.prefix, path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read document from Redis: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode document %v: %w", path, err)
	}
	return doc, true, nil
}

// Store implements tree.Nodes. The document and the index entries of every
// ancestor are written in one transaction.
func (c *Client) Store(ctx context.Context, path []string, doc any) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot store a document at the root")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	key := DocKey(c.prefix, path)
	existed, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check document existence: %w", err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		for i := range path {
			pipe.SAdd(ctx, IndexKey(c.prefix, path[:i]), path[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write document to Redis: %w", err)
	}
	typ := core.EventModify
	if existed == 0 {
		typ = core.EventCreate
	}
	c.publish(ctx, typ, path)
	return nil
}

// Remove implements tree.Nodes.
func (c *Client) Remove(ctx context.Context, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot remove the root")
	}
	var keys []string
	var removed [][]string
	queue := [][]string{path}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		docKey := DocKey(c.prefix, p)
		n, err := c.rdb.Exists(ctx, docKey).Result()
		if err != nil {
			return fmt.Errorf("failed to check document existence: %w", err)
		}
		if n > 0 {
			keys = append(keys, docKey)
			removed = append(removed, p)
		}
		idx := IndexKey(c.prefix, p)
		children, err := c.rdb.SMembers(ctx, idx).Result()
		if err != nil {
			return fmt.Errorf("failed to list children: %w", err)
		}
		if len(children) > 0 {
			keys = append(keys, idx)
		}
		for _, child := range children {
			queue = append(queue, append(append([]string(nil), p...), child))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}
	if err := c.prune(ctx, path); err != nil {
		return err
	}
	for _, p := range removed {
		c.publish(ctx, core.EventDelete, p)
	}
	return nil
}

// prune unlinks path from its parent index, walking up while the parents
// are left without document or children.
func (c *Client) prune(ctx context.Context, path []string) error {
	for i := len(path); i > 0; i-- {
		parent := path[:i-1]
		if err := c.rdb.SRem(ctx, IndexKey(c.prefix, parent), path[i-1]).Err(); err != nil {
			return fmt.Errorf("failed to update index: %w", err)
		}
		if len(parent) == 0 {
			return nil
		}
		n, err := c.rdb.Exists(ctx, DocKey(c.prefix, parent), IndexKey(c.prefix, parent)).Result()
		if err != nil {
			return fmt.Errorf("failed to check parent: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
	return nil
}

// Children implements tree.Nodes.
func (c *Client) Children(ctx context.Context, path []string) ([]string, error) {
	names, err := c.rdb.SMembers(ctx, IndexKey(c.prefix, path)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// NextID implements tree.Sequencer. Keys are zero-padded so that they sort
// in creation order.
func (c *Client) NextID(ctx context.Context, _ []string) (string, error) {
	n, err := c.rdb.Incr(ctx, SeqKey(c.prefix)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate key: %w", err)
	}
	return fmt.Sprintf("r%012d", n), nil
}

type wireEvent struct {
	Type      core.EventType `json:"type"`
	Path      string         `json:"path"`
	Timestamp int64          `json:"timestamp"`
}

// publish announces a change. Failures are logged, never returned: the
// write itself has already succeeded.
func (c *Client) publish(ctx context.Context, typ core.EventType, path []string) {
	payload, _ := json.Marshal(wireEvent{Type: typ, Path: core.Join(path...), Timestamp: time.Now().Unix()})
	if err := c.rdb.Publish(ctx, EventsChannel(c.prefix), payload).Err(); err != nil && c.logger != nil {
		c.logger.Warn("failed to publish change event", "error", err)
	}
}

// Watch subscribes to change events whose path matches pattern (doublestar
// syntax, "" matches everything). The channel is closed when ctx is done.
func (c *Client) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("watch: %w: bad pattern %q", core.ErrInvalid, pattern)
	}
	pubsub := c.rdb.Subscribe(ctx, EventsChannel(c.prefix))
	// Wait for the subscription to be confirmed so no event is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan core.Event, 10)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				var e wireEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					if c.logger != nil {
						c.logger.Warn("malformed change event", "error", err)
					}
					continue
				}
				if pattern != "" {
					if match, _ := doublestar.Match(pattern, e.Path); !match {
						continue
					}
				}
				select {
				case events <- core.Event{Type: e.Type, Path: e.Path, Timestamp: e.Timestamp}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return events, nil
}

// ClientState exposes internal state for observability.
type ClientState struct {
	Prefix string `json:"prefix"`
	Addr   string `json:"addr"`
}

// State implements introspection.Introspectable.
func (c *Client) State() any {
	return ClientState{Prefix: c.prefix, Addr: c.rdb.Options().Addr}
}

// ComponentType implements introspection.Component.
func (c *Client) ComponentType() string {
	return "redis"
}

var (
	_ tree.Nodes                   = (*Client)(nil)
	_ tree.Sequencer               = (*Client)(nil)
	_ core.Watchable               = (*Client)(nil)
	_ introspection.Introspectable = (*Client)(nil)
	_ introspection.Component      = (*Client)(nil)
)
