package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持 errors.Is：Module + Code 相同即视为同一类错误
//
// 使用场景：
//   - 评分存储：UNKNOWN_USER
//   - 聚类模型：MODEL_NOT_FITTED、INVALID_CLUSTER_COUNT
//   - 相似度计算：DEGENERATE_VECTOR
//   - KV 存储：NOT_FOUND、NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "UNKNOWN_USER", "NOT_FOUND"）
	Message string // 错误消息
	Module  string // 模块名称（如 "ratings", "cluster", "store"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 让 errors.Is(err, ErrUnknownUser) 这类判断在带参数的错误实例上同样成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// GetDomainError 获取错误链中的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 推荐引擎错误代码
	ErrorCodeUnknownUser         = "UNKNOWN_USER"          // 用户 ID 超出稠密范围
	ErrorCodeModelNotFitted      = "MODEL_NOT_FITTED"      // 聚类模型尚未训练
	ErrorCodeInvalidClusterCount = "INVALID_CLUSTER_COUNT" // k 不合法
	ErrorCodeDegenerateVector    = "DEGENERATE_VECTOR"     // 非空共同物品但向量范数为 0
	ErrorCodeDuplicateRating     = "DUPLICATE_RATING"      // 同一 (user, item) 出现多条评分
)

// 模块名称常量
const (
	ModuleStore      = "store"      // KV 存储模块
	ModuleRatings    = "ratings"    // 评分存储模块
	ModuleSimilarity = "similarity" // 相似度模块
	ModuleCluster    = "cluster"    // 聚类模块
	ModuleService    = "service"    // 服务模块
	ModuleDataset    = "dataset"    // 数据集加载模块
)

// 哨兵错误，用于 errors.Is 比较；实际返回的错误实例带有具体参数。
var (
	ErrUnknownUser         = NewDomainError(ModuleRatings, ErrorCodeUnknownUser, "ratings: unknown user")
	ErrModelNotFitted      = NewDomainError(ModuleCluster, ErrorCodeModelNotFitted, "cluster: model not fitted")
	ErrInvalidClusterCount = NewDomainError(ModuleCluster, ErrorCodeInvalidClusterCount, "cluster: invalid cluster count")
	ErrDegenerateVector    = NewDomainError(ModuleSimilarity, ErrorCodeDegenerateVector, "similarity: degenerate vector")
)

// NewUnknownUserError 返回用户 ID 越界错误（调用方错误，不应重试）。
func NewUnknownUserError(user, numUsers int) *DomainError {
	return NewDomainError(ModuleRatings, ErrorCodeUnknownUser,
		fmt.Sprintf("ratings: unknown user %d (valid range [0, %d))", user, numUsers))
}

// NewInvalidClusterCountError 返回 k 不合法错误（配置错误，训练时致命）。
func NewInvalidClusterCountError(k, numUsers int) *DomainError {
	return NewDomainError(ModuleCluster, ErrorCodeInvalidClusterCount,
		fmt.Sprintf("cluster: invalid cluster count %d (need 1 <= k <= %d)", k, numUsers))
}

// NewDegenerateVectorError 返回零范数错误。正评分区间下不可达，一旦出现直接上抛，不做置 0 处理。
func NewDegenerateVectorError(common int) *DomainError {
	return NewDomainError(ModuleSimilarity, ErrorCodeDegenerateVector,
		fmt.Sprintf("similarity: zero-norm rating vector over %d common items", common))
}

// NewInvalidInputError 返回输入无效错误
func NewInvalidInputError(module, message string) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, message)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsUnknownUser 检查错误是否为 UNKNOWN_USER
func IsUnknownUser(err error) bool { return hasCode(err, ErrorCodeUnknownUser) }

// IsModelNotFitted 检查错误是否为 MODEL_NOT_FITTED
func IsModelNotFitted(err error) bool { return hasCode(err, ErrorCodeModelNotFitted) }

// IsInvalidClusterCount 检查错误是否为 INVALID_CLUSTER_COUNT
func IsInvalidClusterCount(err error) bool { return hasCode(err, ErrorCodeInvalidClusterCount) }

// IsDegenerateVector 检查错误是否为 DEGENERATE_VECTOR
func IsDegenerateVector(err error) bool { return hasCode(err, ErrorCodeDegenerateVector) }
