package cache

import (
	"context"
	"encoding/json"
	"time"

	"qa-compass-server/src/core/utils"

	"golang.org/x/sync/singleflight"
)

// ReadThrough 读穿缓存：未命中时加载、只写入非空结果、写后回读校验
type ReadThrough struct {
	store  Store
	logger *utils.Logger
	group  singleflight.Group
}

// NewReadThrough store 为空时使用 NopStore
func NewReadThrough(store Store, logger *utils.Logger) *ReadThrough {
	if store == nil {
		store = NopStore{}
	}
	return &ReadThrough{store: store, logger: logger}
}

// Store 底层存储
func (rt *ReadThrough) Store() Store {
	return rt.store
}

// List 读取列表缓存，未命中时调用 load；合并后的加载不随单个调用方取消
func List[T any](ctx context.Context, rt *ReadThrough, key string, ttl time.Duration, load func(context.Context) ([]T, error)) ([]T, error) {
	var cached []T
	if rt.lookup(ctx, key, &cached) {
		return cached, nil
	}

	v, err, _ := rt.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			rt.fill(ctx, key, items, ttl, len(items), func(raw []byte) (int, error) {
				var back []T
				if err := json.Unmarshal(raw, &back); err != nil {
					return 0, err
				}
				return len(back), nil
			})
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// Item 读取单条缓存，load 返回 nil 时不写缓存
func Item[T any](ctx context.Context, rt *ReadThrough, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, error) {
	var cached T
	if rt.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	v, err, _ := rt.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		item, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if item != nil {
			rt.fill(ctx, key, item, ttl, 1, func(raw []byte) (int, error) {
				var back T
				if err := json.Unmarshal(raw, &back); err != nil {
					return 0, err
				}
				return 1, nil
			})
		}
		return item, nil
	})
	if err != nil {
		return nil, err
	}
	item, _ := v.(*T)
	return item, nil
}

// lookup 命中并解码成功时返回 true；解码失败视为未命中并删除该键
func (rt *ReadThrough) lookup(ctx context.Context, key string, out any) bool {
	raw, ok, err := rt.store.Get(ctx, key)
	if err != nil {
		rt.logger.Warn("缓存读取失败 key=%s: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		rt.logger.Warn("缓存解码失败 key=%s: %v", key, err)
		rt.Invalidate(ctx, key)
		return false
	}
	rt.logger.Debug("缓存命中 key=%s", key)
	return true
}

// fill 写入缓存后回读，条目数不一致时删除该键
func (rt *ReadThrough) fill(ctx context.Context, key string, value any, ttl time.Duration, want int, count func([]byte) (int, error)) {
	raw, err := json.Marshal(value)
	if err != nil {
		rt.logger.Warn("缓存编码失败 key=%s: %v", key, err)
		return
	}
	if err := rt.store.Set(ctx, key, raw, ttl); err != nil {
		rt.logger.Warn("缓存写入失败 key=%s: %v", key, err)
		return
	}

	back, ok, err := rt.store.Get(ctx, key)
	if err != nil || !ok {
		return
	}
	if got, err := count(back); err != nil || got != want {
		rt.logger.Warn("缓存校验不一致 key=%s want=%d got=%d", key, want, got)
		rt.Invalidate(ctx, key)
	}
}

// Invalidate 删除指定键
func (rt *ReadThrough) Invalidate(ctx context.Context, keys ...string) {
	if err := rt.store.Delete(ctx, keys...); err != nil {
		rt.logger.Warn("缓存删除失败 keys=%v: %v", keys, err)
	}
}

// InvalidatePattern 按通配符删除，返回删除数量
func (rt *ReadThrough) InvalidatePattern(ctx context.Context, patterns ...string) int {
	total := 0
	for _, p := range patterns {
		n, err := rt.store.DeletePattern(ctx, p)
		if err != nil {
			rt.logger.Warn("缓存批量删除失败 pattern=%s: %v", p, err)
		}
		total += n
	}
	return total
}
