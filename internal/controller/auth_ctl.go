package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"meli_dev_v1_202609/internal/service"
)

// AuthController 美客多授权接口
type AuthController struct {
	authSvc *service.AuthService
}

// NewAuthController 创建授权控制器
func NewAuthController(authSvc *service.AuthService) *AuthController {
	return &AuthController{authSvc: authSvc}
}

// LoginURL 生成美客多授权页地址
// @Summary 获取授权地址
// @Tags 授权
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/login-url [get]
func (ctl *AuthController) LoginURL(c *gin.Context) {
	url := ctl.authSvc.GenerateLoginURL(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": gin.H{"url": url},
	})
}

// Callback 授权回调，美客多带着 code 和 state 跳回来
// @Summary 授权回调
// @Tags 授权
// @Param code query string true "授权码"
// @Param state query string true "防伪串"
// @Router /api/v1/auth/callback [get]
func (ctl *AuthController) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "缺少 code 或 state 参数",
		})
		return
	}

	account, err := ctl.authSvc.HandleCallback(c.Request.Context(), code, state)
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "state 校验失败，请重新发起授权",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "授权失败: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "授权成功",
		"data":    account,
	})
}
