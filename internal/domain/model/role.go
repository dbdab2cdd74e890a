package model

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleFarmer Role = "FARMER"
	RoleAdmin  Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleFarmer, RoleAdmin:
		return true
	}
	return false
}

// 認証済みの呼び出し元。IDとロールは外部の認証基盤が決める。
type Actor struct {
	UserID int64
	Role   Role
}
