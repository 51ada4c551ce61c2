package storage

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// NoExpiry 条目在进程生命周期内有效(离线Excel数据)
const NoExpiry time.Duration = 0

// Cache 按数据源参数缓存已加载的航班表
// 带TTL的条目过期后在下一次读取时淘汰; TTL为 NoExpiry 的条目只会被 Invalidate 清除
// 同一个键的并发加载合并为一次
type Cache[V any] struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	gen     uint64 // 每次 Invalidate 加一, 之前开始的加载结果不再写入
	loads   singleflight.Group
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time // 零值表示不过期
}

// NewCache 创建缓存, clock 为 nil 时使用真实时间
func NewCache[V any](clock clockwork.Clock) *Cache[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[V]{
		clock:   clock,
		entries: make(map[string]cacheEntry[V]),
	}
}

// Key 由数据源名和参数拼出缓存键
func Key(source string, params ...string) string {
	return source + "|" + strings.Join(params, "|")
}

// Get 读取未过期的条目
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put 写入条目, ttl 为 NoExpiry 时不过期
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = c.newEntry(value, ttl)
}

func (c *Cache[V]) newEntry(value V, ttl time.Duration) cacheEntry[V] {
	e := cacheEntry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	return e
}

// GetOrLoad 命中直接返回, 否则调用 load 并缓存结果
// 同一键同时只有一个 load 在执行, 其余调用方等待并共享结果
// load 返回 false 时不缓存(失败结果允许下次重试)
func (c *Cache[V]) GetOrLoad(key string, ttl time.Duration, load func() (V, bool)) V {
	if v, ok := c.Get(key); ok {
		return v
	}

	gen := c.generation()
	res, _, _ := c.loads.Do(strconv.FormatUint(gen, 10)+"#"+key, func() (interface{}, error) {
		// 进入之前上一轮加载可能已经写入
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, keep := load()
		if keep {
			c.putIfCurrent(key, v, ttl, gen)
		}
		return v, nil
	})
	return res.(V)
}

func (c *Cache[V]) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// putIfCurrent 加载期间发生过 Invalidate 则丢弃结果
func (c *Cache[V]) putIfCurrent(key string, value V, ttl time.Duration, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.entries[key] = c.newEntry(value, ttl)
}

// Invalidate 删除指定前缀的所有条目
func (c *Cache[V]) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len 当前条目数(含尚未淘汰的过期条目)
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
