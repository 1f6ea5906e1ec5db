package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"meli_dev_v1_202609/internal/middleware"
	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrUserDisabled       = errors.New("用户已被禁用")
)

// UserService 系统用户登录与管理
type UserService struct {
	userRepo repository.UserRepository
	jwtCfg   middleware.JWTConfig
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository, jwtCfg middleware.JWTConfig) *UserService {
	return &UserService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
	}
}

// Login 校验用户名密码，签发一对 JWT
func (s *UserService) Login(ctx context.Context, username, password string) (*middleware.TokenPair, *model.SysUser, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if user.Status != model.UserStatusActive {
		return nil, nil, ErrUserDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := middleware.GenerateTokenPair(s.jwtCfg, user.ID, user.Username, user.Role)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// GetByID 查询用户
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.SysUser, error) {
	return s.userRepo.GetByID(ctx, id)
}

// EnsureAdmin 启动时保证存在一个管理员账号
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.Create(ctx, &model.SysUser{
		Username:     username,
		PasswordHash: string(hash),
		Nickname:     "管理员",
		Role:         model.RoleAdmin,
		Status:       model.UserStatusActive,
	})
}
