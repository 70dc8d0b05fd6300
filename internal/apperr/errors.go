// Package apperr 定义了跨层使用的错误分类。
// 各层用 fmt.Errorf("...: %w", err) 包装这些哨兵错误，调用方用 errors.Is 分支。
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 会话不存在（已删除或从未写入）。
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden 试图访问不属于调用者的会话，不返回任何数据。
	ErrForbidden = errors.New("forbidden")
	// ErrTransient 网络、存储或网关的可恢复故障。
	ErrTransient = errors.New("service unavailable")
	// ErrPersistence 会话创建或追加未能写入。
	ErrPersistence = errors.New("persistence failure")
	// ErrConfiguration 向量维度不一致、分类缺失等致命配置错误，不重试。
	ErrConfiguration = errors.New("configuration failure")
	// ErrInvalidInput 请求参数不合法。
	ErrInvalidInput = errors.New("invalid input")
)

// Transient 把底层错误标记为可恢复故障。
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// Persistence 把底层错误标记为持久化失败。
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Configuration 构造一个配置错误。
func Configuration(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// InvalidInput 构造一个参数错误。
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsForbidden(err error) bool     { return errors.Is(err, ErrForbidden) }
func IsTransient(err error) bool     { return errors.Is(err, ErrTransient) }
func IsPersistence(err error) bool   { return errors.Is(err, ErrPersistence) }
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsInvalidInput(err error) bool  { return errors.Is(err, ErrInvalidInput) }
