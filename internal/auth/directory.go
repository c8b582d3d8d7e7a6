package auth

import (
	"sort"

	apperrors "github.com/aihub/finance-rag/internal/errors"
	"github.com/aihub/finance-rag/internal/retrieval"
)

// PrincipalDirectory 访问主体目录。索引写入与查询过滤使用同一套主体标识，
// 避免ACL里出现目录之外的无效成员
type PrincipalDirectory interface {
	Lookup(id string) (*retrieval.Principal, error)
	Exists(id string) bool
	List() []retrieval.Principal
	// ValidateACL 返回不在目录内的未知成员
	ValidateACL(acl []string) []string
}

// StaticDirectory 静态主体目录实现，主体清单来自配置或启动参数
type StaticDirectory struct {
	principals map[string]retrieval.Principal
}

// NewStaticDirectory 创建静态主体目录
func NewStaticDirectory(principals []retrieval.Principal) *StaticDirectory {
	index := make(map[string]retrieval.Principal, len(principals))
	for _, p := range principals {
		index[p.ID] = p
	}
	// admin主体始终存在
	if _, ok := index[retrieval.AdminPrincipal]; !ok {
		index[retrieval.AdminPrincipal] = retrieval.Principal{
			ID:   retrieval.AdminPrincipal,
			Role: retrieval.RoleAdmin,
		}
	}
	return &StaticDirectory{principals: index}
}

func (d *StaticDirectory) Lookup(id string) (*retrieval.Principal, error) {
	p, ok := d.principals[id]
	if !ok {
		return nil, apperrors.NewBusinessError(
			apperrors.ErrCodeAccessDenied,
			"unknown principal: "+id,
		)
	}
	return &p, nil
}

func (d *StaticDirectory) Exists(id string) bool {
	_, ok := d.principals[id]
	return ok
}

func (d *StaticDirectory) List() []retrieval.Principal {
	out := make([]retrieval.Principal, 0, len(d.principals))
	for _, p := range d.principals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateACL 校验ACL成员是否都在目录内，返回未知成员列表
func (d *StaticDirectory) ValidateACL(acl []string) []string {
	var unknown []string
	for _, member := range acl {
		if !d.Exists(member) {
			unknown = append(unknown, member)
		}
	}
	return unknown
}
