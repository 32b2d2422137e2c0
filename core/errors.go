package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、消息（Message）与上下文（Details）
//   - 支持错误检查函数（IsXXX），可穿透 fmt.Errorf("%w") 包装
//
// 使用场景：
//   - 特征错误：DATA_INTEGRITY（上游规范化契约被破坏）
//   - 训练错误：INSUFFICIENT_DATA（没有可贡献 pairwise 信号的分组）
//   - 参数错误：INVALID_ARGUMENT（K <= 0 等）
//   - 模型错误：SCHEMA_MISMATCH（模型与特征 schema 不一致）
//   - Store / 叙述服务错误：NOT_FOUND, NOT_SUPPORTED, UNAVAILABLE
type DomainError struct {
	Code    string            // 错误代码（如 "DATA_INTEGRITY"）
	Message string            // 错误消息
	Module  string            // 模块名称（如 "feature", "model"）
	Details map[string]string // 错误上下文（order_id / candidate_id / field 等）
}

func (e *DomainError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Details[k])
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
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

// WithDetail 追加上下文字段，返回自身便于链式调用。
func (e *DomainError) WithDetail(key, value string) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 比较物排序链路错误代码
	ErrorCodeDataIntegrity    = "DATA_INTEGRITY"    // 上游规范化字段缺失/非法
	ErrorCodeInsufficientData = "INSUFFICIENT_DATA" // 没有可用的训练分组
	ErrorCodeInvalidArgument  = "INVALID_ARGUMENT"  // 参数非法
	ErrorCodeSchemaMismatch   = "SCHEMA_MISMATCH"   // 模型与特征 schema 不一致
)

// 模块名称常量
const (
	ModuleStore     = "store"     // 存储模块
	ModuleFeature   = "feature"   // 特征模块
	ModuleDataset   = "dataset"   // 训练样本模块
	ModuleModel     = "model"     // 排序模型模块
	ModuleEvaluate  = "evaluate"  // 评估模块
	ModuleExplain   = "explain"   // 解释模块
	ModuleNarrative = "narrative" // 叙述服务模块
)

// NewDataIntegrityError 创建字段缺失/非法错误，定位到订单、候选与字段。
func NewDataIntegrityError(orderID, candidateID, field string) *DomainError {
	return NewDomainError(ModuleFeature, ErrorCodeDataIntegrity,
		fmt.Sprintf("feature: required field %q missing or invalid", field)).
		WithDetail("order_id", orderID).
		WithDetail("candidate_id", candidateID).
		WithDetail("field", field)
}

// NewInvalidArgumentError 创建参数非法错误
func NewInvalidArgumentError(module, message string) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidArgument, module+": "+message)
}

// NewInsufficientDataError 创建训练数据不足错误
func NewInsufficientDataError(message string) *DomainError {
	return NewDomainError(ModuleModel, ErrorCodeInsufficientData, "model: "+message)
}

// NewSchemaMismatchError 创建 schema 不一致错误
func NewSchemaMismatchError(want, got string) *DomainError {
	return NewDomainError(ModuleModel, ErrorCodeSchemaMismatch, "model: feature schema mismatch").
		WithDetail("want", want).
		WithDetail("got", got)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsDataIntegrity 检查错误是否为 DATA_INTEGRITY
func IsDataIntegrity(err error) bool { return hasCode(err, ErrorCodeDataIntegrity) }

// IsInsufficientData 检查错误是否为 INSUFFICIENT_DATA
func IsInsufficientData(err error) bool { return hasCode(err, ErrorCodeInsufficientData) }

// IsInvalidArgument 检查错误是否为 INVALID_ARGUMENT
func IsInvalidArgument(err error) bool { return hasCode(err, ErrorCodeInvalidArgument) }

// IsSchemaMismatch 检查错误是否为 SCHEMA_MISMATCH
func IsSchemaMismatch(err error) bool { return hasCode(err, ErrorCodeSchemaMismatch) }
