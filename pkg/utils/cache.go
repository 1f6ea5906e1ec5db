package utils

import (
	"sync"
	"time"
)

// 简单的进程内 TTL 缓存，用于 OAuth state 防伪串这类短命数据

type cacheItem struct {
	value     string
	expiresAt time.Time
}

var (
	cacheStore sync.Map
	defaultTTL = 10 * time.Minute
)

// SetCache 写入缓存，默认 10 分钟过期
func SetCache(key, value string) {
	cacheStore.Store(key, cacheItem{
		value:     value,
		expiresAt: time.Now().Add(defaultTTL),
	})
}

// GetCache 读取缓存，过期条目惰性删除
func GetCache(key string) (string, bool) {
	v, ok := cacheStore.Load(key)
	if !ok {
		return "", false
	}
	item := v.(cacheItem)
	if time.Now().After(item.expiresAt) {
		cacheStore.Delete(key)
		return "", false
	}
	return item.value, true
}

// DeleteCache 删除缓存
func DeleteCache(key string) {
	cacheStore.Delete(key)
}
