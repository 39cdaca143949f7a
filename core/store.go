package core

import "context"

// Store 是 KV 存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//
// 使用场景：
//   - 评分快照共享：多个服务实例从 Redis 加载同一份评分数据
//   - 结果缓存：按 策略 + 模型版本 + 用户 缓存推荐结果
//   - 黑名单：过滤器从存储读取下架物品
//
// 实现：
//   - store.MemoryStore
//   - store.RedisStore
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl 单位为秒
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// BatchGet 批量读取（减少网络往返）
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet 批量写入
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error

	// Close 关闭连接/释放资源
	Close() error
}

// KeyValueStore 是 Store 的扩展接口，支持集合类操作。
type KeyValueStore interface {
	Store

	// SAdd 向集合添加成员（用于黑名单等）
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers 读取集合全部成员
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreUnavailable 表示后端不可达
	ErrStoreUnavailable = NewDomainError(ModuleStore, ErrorCodeUnavailable, "store: backend unavailable")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}
