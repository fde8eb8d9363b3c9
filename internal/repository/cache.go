// cache.go — LRU-кэш записей с TTL на пути чтения.
// Обёртка над hashicorp/golang-lru/v2/expirable. Каждый экземпляр
// Archivarius имеет собственный in-memory кэш; когерентность внутри
// процесса обеспечивается инвалидацией при Upsert/Delete.
package repository

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша записей.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_record_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей.",
	}, []string{"collection"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_record_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей.",
	}, []string{"collection"})
)

// recordCache — LRU-кэш записей одной коллекции с автоматическим TTL.
type recordCache[V any] struct {
	lru        *expirable.LRU[string, V]
	collection string
}

// newRecordCache создаёт кэш с указанным размером и TTL.
// При size <= 0 кэш отключён (все методы — no-op).
func newRecordCache[V any](collection string, size int, ttl time.Duration) *recordCache[V] {
	if size <= 0 {
		return &recordCache[V]{collection: collection}
	}
	return &recordCache[V]{
		lru:        expirable.NewLRU[string, V](size, nil, ttl),
		collection: collection,
	}
}

// get возвращает запись из кэша и обновляет метрики hit/miss.
func (c *recordCache[V]) get(id string) (V, bool) {
	var zero V
	if c.lru == nil {
		return zero, false
	}
	val, ok := c.lru.Get(id)
	if ok {
		cacheHitsTotal.WithLabelValues(c.collection).Inc()
		return val, true
	}
	cacheMissesTotal.WithLabelValues(c.collection).Inc()
	return zero, false
}

// set добавляет или обновляет запись в кэше.
func (c *recordCache[V]) set(id string, val V) {
	if c.lru == nil {
		return
	}
	c.lru.Add(id, val)
}

// invalidate удаляет запись из кэша (при Upsert/Delete).
func (c *recordCache[V]) invalidate(id string) {
	if c.lru == nil {
		return
	}
	c.lru.Remove(id)
}
