package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode     = 40000 // 无效的请求参数
	ValidationFailedCode  = 40001 // 参数验证失败
	ContentEmptyCode      = 40002 // 分享内容为空
	FileTooLargeCode      = 40003 // 上传文件过大
	InvalidExpirationCode = 40004 // 过期策略无效

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode          = 40100 // 通用未授权
	TokenInvalidCode          = 40101 // Token 无效或过期
	SharePasswordRequiredCode = 40102 // 分享需要密码

	// --- 权限错误系列 (403xx) ---
	ForbiddenCode              = 40300 // 通用无权限
	SharePasswordIncorrectCode = 40301 // 分享密码不正确

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode      = 40400 // 通用资源未找到
	ShareNotFoundCode = 40401 // 分享不存在、已过期或已耗尽（对外统一表现）

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 存储服务操作失败（如MinIO）
	ContentMissingCode      = 50003 // 存活记录引用的内容丢失，内部一致性故障
	MQErrorCode             = 50004 // 消息队列操作失败
)
