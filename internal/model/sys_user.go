package model

// 用户状态
const (
	UserStatusActive   = 1
	UserStatusDisabled = 0
)

// 用户角色
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// SysUser 系统用户（登录看板用）
type SysUser struct {
	BaseModel

	Username     string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"size:100;not null" json:"-"`
	Nickname     string `gorm:"size:50" json:"nickname"`
	Role         string `gorm:"size:20;default:'operator'" json:"role"`
	Status       int    `gorm:"default:1" json:"status"`
}

func (SysUser) TableName() string {
	return "sys_users"
}
