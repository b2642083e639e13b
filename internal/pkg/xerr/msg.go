package xerr

import "errors"

var (
	// 通用错误
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams     = errors.New("无效的请求参数")
	ErrValidationFailed  = errors.New("参数验证失败")
	ErrContentEmpty      = errors.New("分享内容不能为空")
	ErrFileTooLarge      = errors.New("上传文件过大，超出限制")
	ErrInvalidExpiration = errors.New("过期策略无效")

	// 认证与授权错误
	ErrUnauthorized = errors.New("用户未授权")
	ErrTokenInvalid = errors.New("认证 Token 无效或已过期")

	// 分享访问错误
	// 过期、耗尽和从未存在对外不可区分，统一为 ErrShareNotFound，
	// 避免通过删除时机泄露链接是否存在过
	ErrShareNotFound          = errors.New("分享不存在或已失效")
	ErrSharePasswordRequired  = errors.New("该分享需要密码")
	ErrSharePasswordIncorrect = errors.New("分享密码不正确")

	// 数据库与外部服务错误
	ErrDatabaseError  = errors.New("数据库操作失败")
	ErrStorageError   = errors.New("存储服务操作失败")
	ErrContentMissing = errors.New("分享内容已丢失")
	ErrMQError        = errors.New("消息队列操作失败")
)
