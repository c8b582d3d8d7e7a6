package retrieval

import (
	"strings"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

// 管理员的特权是规则而不是ACL条目：admin主体或admin角色
// 对所有文档隐式可见，无论文档ACL内容如何。
const (
	AdminPrincipal = "admin"
	RoleAdmin      = "admin"
)

// Principal 请求主体
type Principal struct {
	ID   string
	Role string
}

// IsAdmin 是否为管理员（特权主体或管理员角色）
func (p Principal) IsAdmin() bool {
	return p.ID == AdminPrincipal || p.Role == RoleAdmin
}

// BuildPredicate 构建主体的ACL过滤器，必须下推到索引层执行。
// 管理员返回空过滤器（匹配全部）；普通主体返回 acl contains principal。
// 构建失败对查询是致命的，绝不能放宽可见范围。
func BuildPredicate(p Principal) (Filter, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return Filter{}, apperrors.NewBusinessError(apperrors.ErrCodeAccessDenied, "access denied").WithDetails("empty principal")
	}
	if (Principal{ID: id, Role: p.Role}).IsAdmin() {
		return Filter{}, nil
	}
	return Filter{Must: []Condition{{Key: FieldACL, Value: id}}}, nil
}
