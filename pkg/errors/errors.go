package errors

import "fmt"

// 错误码
const (
	CodeSuccess         = 200
	CodePartialSuccess  = 206 // 部分成功
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeInternalError   = 500
	CodeDatabaseError   = 501
	CodeAuthError       = 502
	CodeValidationError = 503
	CodeTimeout         = 504
	CodeHealthCheck     = 505
	CodeTrafficControl  = 506
	CodeInstall         = 507
	CodeRollback        = 508
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 提取错误码, 非 AppError 一律视为内部错误
func CodeOf(err error) int {
	if err == nil {
		return CodeSuccess
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// IsCode 判断错误是否携带指定错误码
func IsCode(err error, code int) bool {
	return CodeOf(err) == code
}

// 预定义错误
var (
	ErrBadRequest      = New(CodeBadRequest, "请求参数错误")
	ErrUnauthorized    = New(CodeUnauthorized, "未授权")
	ErrForbidden       = New(CodeForbidden, "禁止访问")
	ErrNotFound        = New(CodeNotFound, "资源不存在")
	ErrConflict        = New(CodeConflict, "资源冲突")
	ErrInternalError   = New(CodeInternalError, "内部服务器错误")
	ErrDatabaseError   = New(CodeDatabaseError, "数据库错误")
	ErrAuthError       = New(CodeAuthError, "认证失败")
	ErrValidationError = New(CodeValidationError, "数据验证失败")
	ErrTimeout         = New(CodeTimeout, "操作超时")

	// 具体业务错误
	ErrInvalidCredentials = New(CodeAuthError, "账号或密钥错误")
	ErrAccountDisabled    = New(CodeForbidden, "账号已禁用")
	ErrInvalidToken       = New(CodeUnauthorized, "无效的Token")
	ErrTokenExpired       = New(CodeUnauthorized, "Token已过期")
	ErrRecordNotFound     = New(CodeNotFound, "记录不存在")
	ErrTargetNotFound     = New(CodeNotFound, "目标不存在")
	ErrTargetRetired      = New(CodeForbidden, "目标已退役")
	ErrDeployConflict     = New(CodeConflict, "目标存在进行中的发布, 拒绝提交")
	ErrHealthCheckFailed  = New(CodeHealthCheck, "健康检查未通过")
	ErrTrafficControl     = New(CodeTrafficControl, "流量控制操作失败")
	ErrInstallFailed      = New(CodeInstall, "制品安装失败")
	ErrRollbackFailed     = New(CodeRollback, "回滚失败, 需要人工介入")
)
