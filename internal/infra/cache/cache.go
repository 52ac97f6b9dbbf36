// Package cache 提供单次 run 内使用的内存键值缓存。
//
// 约束：
// - 生命周期等于持有者（provider 实例）的生命周期，不落盘
// - 可以缓存“未命中”结果（例如 nil 值），Get 用 ok 区分“没缓存过”与“缓存了空值”
package cache

import (
	"strings"
	"sync"
)

// Store 是按字符串键索引的缓存。零值不可用，请使用 New。
type Store[V any] struct {
	mu    sync.Mutex
	items map[string]V

	hits   int
	misses int
}

func New[V any]() *Store[V] {
	return &Store[V]{items: make(map[string]V)}
}

func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[normKey(key)]
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return v, ok
}

func (s *Store[V]) Put(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[normKey(key)] = v
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats 返回命中/未命中次数（用于日志与测试）。
func (s *Store[V]) Stats() (hits, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}

// 键只做首尾去空白：查询串的大小写本身可能有意义（原样透传给站点）。
func normKey(k string) string { return strings.TrimSpace(k) }
