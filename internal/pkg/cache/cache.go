package cache

import (
	"context"
	"time"
)

// 缓存通用接口
// 注意：分享记录的存活状态永远以数据库为准，这里只放统计计数这类旁路数据
type Cache interface {
	// Set在缓存中设置一个值，并指定过期时间。
	// value应该是一个可以被JSON封送的结构体或指向结构体的指针。
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get从缓存中检索一个值，并将其解编组到目标接口。
	// target应该是一个指针，指向希望解编组成的类型。
	Get(ctx context.Context, key string, target any) error

	// 删除一个或多个key
	Del(ctx context.Context, keys ...string) error

	// 检查key是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// 计数器自增，返回自增后的值
	Incr(ctx context.Context, key string) (int64, error)

	// 读取计数器的当前值，key 不存在时返回 0
	GetInt(ctx context.Context, key string) (int64, error)
}
