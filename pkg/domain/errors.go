package domain

import "errors"

// 会话相关错误
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionStopped   = errors.New("session already stopped")
	ErrSessionNotReady  = errors.New("session not ready")
	ErrLaunchFailed     = errors.New("session launch failed")
	ErrExecutionPending = errors.New("execution already pending")
)

// 连接相关错误
var (
	ErrEndpointUnreachable = errors.New("gateway endpoint unreachable")
	ErrChannelClosed       = errors.New("session channel closed")
)

// 流程相关错误
var (
	ErrFlowNotFound   = errors.New("test flow not found")
	ErrInvalidFlow    = errors.New("invalid test flow definition")
	ErrClickOutOfPage = errors.New("click outside page bounds")
)

// 配置相关错误
var (
	ErrInvalidConfig = errors.New("invalid config")
)

// 数据库相关错误
var (
	ErrDatabaseNotInitialized = errors.New("database not initialized")
	ErrRecordNotFound         = errors.New("record not found")
)
