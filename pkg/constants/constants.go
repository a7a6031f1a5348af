package constants

// 状态
const (
	StatusEnabled  int8 = 1
	StatusDisabled int8 = 0
)

// JWT 相关
const (
	JWTContextKey  = "jwt_account"
	JWTTypeAccess  = "access"
	JWTTypeRefresh = "refresh"
)

// 服务账号角色
const (
	RoleAdmin    = "admin"    // 全部操作
	RoleDeployer = "deployer" // 提交发布 + 查询
	RoleViewer   = "viewer"   // 只读
)

// HTTP Header
const (
	HeaderAuthorization = "Authorization"
	HeaderBearerPrefix  = "Bearer "
)
