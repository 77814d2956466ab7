// Package session хранит состояние многошаговых диалогов акторов.
//
// Черновик живёт ограниченное время: брошенный на полпути диалог
// (например, вывод средств без введённой суммы) истекает по TTL и не
// оставляет никаких следов в леджере.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Draft описывает незавершённое многошаговое намерение одного актора.
type Draft struct {
	Intent        string    `json:"intent"`
	RecipientCode string    `json:"recipient_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store описывает хранилище черновиков диалогов.
type Store interface {
	Put(ctx context.Context, actorID int64, draft Draft) error
	Get(ctx context.Context, actorID int64) (*Draft, error)
	Clear(ctx context.Context, actorID int64) error
}

func sessionKey(actorID int64) string {
	return "session:" + strconv.FormatInt(actorID, 10)
}

// RedisStore хранит черновики в Redis с TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore создаёт хранилище черновиков поверх подключения к Redis.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Connect открывает и проверяет подключение к Redis.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// Put сохраняет черновик актора, перезаписывая предыдущий.
func (s *RedisStore) Put(ctx context.Context, actorID int64, draft Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKey(actorID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	return nil
}

// Get возвращает черновик актора или nil, если его нет.
func (s *RedisStore) Get(ctx context.Context, actorID int64) (*Draft, error) {
	data, err := s.rdb.Get(ctx, sessionKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &d, nil
}

// Clear удаляет черновик актора. Отсутствие черновика не является ошибкой.
func (s *RedisStore) Clear(ctx context.Context, actorID int64) error {
	if err := s.rdb.Del(ctx, sessionKey(actorID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

type memoryEntry struct {
	draft     Draft
	expiresAt time.Time
}

// MemoryStore хранит черновики в памяти процесса. Используется, когда Redis
// не сконфигурирован, и в тестах.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore создаёт хранилище черновиков в памяти с указанным TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put сохраняет черновик актора, перезаписывая предыдущий.
func (s *MemoryStore) Put(_ context.Context, actorID int64, draft Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[actorID] = memoryEntry{
		draft:     draft,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Get возвращает черновик актора или nil, если его нет либо он истёк.
func (s *MemoryStore) Get(_ context.Context, actorID int64) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[actorID]
	if !ok {
		return nil, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, actorID)
		return nil, nil
	}

	d := e.draft
	return &d, nil
}

// Clear удаляет черновик актора.
func (s *MemoryStore) Clear(_ context.Context, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, actorID)
	return nil
}
