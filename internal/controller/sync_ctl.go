package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meli_dev_v1_202609/internal/service"
	"meli_dev_v1_202609/internal/task"
)

// SyncController 同步编排接口
type SyncController struct {
	syncSvc *service.SyncService
	tasks   *task.TaskManager
}

// NewSyncController 创建同步控制器
func NewSyncController(syncSvc *service.SyncService, tasks *task.TaskManager) *SyncController {
	return &SyncController{
		syncSvc: syncSvc,
		tasks:   tasks,
	}
}

// RunTick 手动驱动一个同步 tick。失败也返回 200，
// 结果通过 success 字段表达，方便前端轮询。
// @Summary 驱动一个同步 tick
// @Tags 同步
// @Security BearerAuth
// @Router /api/v1/sync/tick [post]
func (ctl *SyncController) RunTick(c *gin.Context) {
	report, err := ctl.syncSvc.RunTick(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"code":    200,
			"success": false,
			"message": err.Error(),
			"data":    report,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"success": true,
		"data":    report,
	})
}

// RequestAccountSync 请求对某账号做一轮全量同步
// @Summary 请求账号同步
// @Tags 同步
// @Security BearerAuth
// @Param id path int true "账号 ID"
// @Router /api/v1/sync/accounts/{id}/request [post]
func (ctl *SyncController) RequestAccountSync(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := ctl.tasks.TriggerAccountSync(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":    409,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "同步已请求，后台开始执行",
	})
}

// RefreshTokens 手动触发 token 批量刷新
// @Summary 刷新即将过期的 token
// @Tags 同步
// @Security BearerAuth
// @Router /api/v1/sync/tokens/refresh [post]
func (ctl *SyncController) RefreshTokens(c *gin.Context) {
	if err := ctl.tasks.TriggerTokenRefresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    503,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "token 刷新已触发",
	})
}
