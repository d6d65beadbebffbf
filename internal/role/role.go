package role

// 角色常量，与用户表中的 role 字段取值一致。
const (
	User      = "user"
	Moderator = "moderator"
	Admin     = "admin"
)

// Rank 把角色映射为可比较的等级，未知或缺失的角色按普通用户处理。
func Rank(r string) int {
	switch r {
	case Admin:
		return 3
	case Moderator:
		return 2
	default:
		return 1
	}
}

// Valid 判断字符串是否为已知角色。
func Valid(r string) bool {
	return r == User || r == Moderator || r == Admin
}

// CanModerate 严格等级压制：只有等级更高的一方才能处置对方，同级互不生效。
func CanModerate(actor, target string) bool {
	return Rank(actor) > Rank(target)
}
