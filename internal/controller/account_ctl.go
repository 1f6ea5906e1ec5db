package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meli_dev_v1_202609/internal/service"
)

// AccountController 卖家账号管理接口
type AccountController struct {
	accountSvc *service.AccountService
}

// NewAccountController 创建账号控制器
func NewAccountController(accountSvc *service.AccountService) *AccountController {
	return &AccountController{accountSvc: accountSvc}
}

// List 账号列表
// @Summary 账号列表
// @Tags 账号
// @Security BearerAuth
// @Router /api/v1/accounts [get]
func (ctl *AccountController) List(c *gin.Context) {
	accounts, err := ctl.accountSvc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "查询账号失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": accounts,
	})
}

// Get 账号详情
// @Summary 账号详情
// @Tags 账号
// @Security BearerAuth
// @Param id path int true "账号 ID"
// @Router /api/v1/accounts/{id} [get]
func (ctl *AccountController) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	account, err := ctl.accountSvc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "账号不存在",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": account,
	})
}

// Delete 删除账号并级联清掉商品镜像，不可恢复
// @Summary 删除账号
// @Tags 账号
// @Security BearerAuth
// @Param id path int true "账号 ID"
// @Router /api/v1/accounts/{id} [delete]
func (ctl *AccountController) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := ctl.accountSvc.Remove(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "删除账号失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "账号及其商品镜像已删除",
	})
}
