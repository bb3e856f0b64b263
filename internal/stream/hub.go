package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	channelPrefix  = "runcheer:group:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix

	// Broadcast runs on tracking loops, so a slow Redis must not hold them.
	publishTimeout = 500 * time.Millisecond
)

// Hub fans group events out to websocket viewers. With Redis configured,
// events are mirrored to other API instances over pub/sub.
type Hub struct {
	redis    *redis.Client
	logger   *slog.Logger
	origin   string
	clients  map[string]map[*Client]struct{}
	mu       sync.RWMutex
	snapshot func(code string) [][]byte
	cancel   context.CancelFunc
}

type Client struct {
	GroupCode string
	Send      chan []byte
}

type envelope struct {
	Origin  string `msgpack:"o"`
	Payload []byte `msgpack:"p"`
}

func NewHub(redisClient *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:   redisClient,
		logger:  logger,
		origin:  uuid.NewString(),
		clients: map[string]map[*Client]struct{}{},
		cancel:  cancel,
	}

	if redisClient != nil {
		pubsub := redisClient.PSubscribe(ctx, channelPattern)
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Warn("redis subscribe failed, events stay local", "err", err)
			_ = pubsub.Close()
		} else {
			go h.subscribeRedis(ctx, pubsub)
		}
	}
	return h
}

// SetSnapshot installs the source of frames replayed to a viewer on join.
func (h *Hub) SetSnapshot(fn func(code string) [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

func (h *Hub) Register(code string) *Client {
	client := &Client{
		GroupCode: code,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	if h.clients[code] == nil {
		h.clients[code] = map[*Client]struct{}{}
	}
	h.clients[code][client] = struct{}{}
	snapshot := h.snapshot
	h.mu.Unlock()

	if snapshot != nil {
		for _, frame := range snapshot(code) {
			select {
			case client.Send <- frame:
			default:
			}
		}
	}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if groupClients, ok := h.clients[client.GroupCode]; ok {
		if _, ok := groupClients[client]; !ok {
			return
		}
		delete(groupClients, client)
		if len(groupClients) == 0 {
			delete(h.clients, client.GroupCode)
		}
		close(client.Send)
	}
}

// Viewers reports how many local websocket clients follow a group.
func (h *Hub) Viewers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[code])
}

func (h *Hub) Broadcast(code string, payload []byte) {
	h.deliver(code, payload)

	if h.redis != nil {
		msg, err := msgpack.Marshal(envelope{Origin: h.origin, Payload: payload})
		if err != nil {
			h.logger.Error("encode hub envelope", "group", code, "err", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := h.redis.Publish(ctx, redisChannel(code), msg).Err(); err != nil {
			h.logger.Warn("redis publish error", "group", code, "err", err)
		}
	}
}

func (h *Hub) Close() {
	h.cancel()
}

func (h *Hub) deliver(code string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[code] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := msgpack.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn("drop malformed hub message", "channel", msg.Channel, "err", err)
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			code := groupFromChannel(msg.Channel)
			if code == "" {
				continue
			}
			h.deliver(code, env.Payload)
		}
	}
}

func redisChannel(code string) string {
	return channelPrefix + code + channelSuffix
}

func groupFromChannel(ch string) string {
	// runcheer:group:{code}:events
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	if ch[:len(channelPrefix)] != channelPrefix || ch[len(ch)-len(channelSuffix):] != channelSuffix {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
