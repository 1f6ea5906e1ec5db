package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meli_dev_v1_202609/internal/api/dto"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/internal/service"
)

// ItemController 商品镜像查询与操作接口
type ItemController struct {
	itemSvc *service.ItemService
}

// NewItemController 创建商品控制器
func NewItemController(itemSvc *service.ItemService) *ItemController {
	return &ItemController{itemSvc: itemSvc}
}

// List 商品列表
// @Summary 商品列表
// @Tags 商品
// @Security BearerAuth
// @Param account_id query int false "账号 ID"
// @Param status query string false "商品状态"
// @Param keyword query string false "标题或商品 ID"
// @Router /api/v1/items [get]
func (ctl *ItemController) List(c *gin.Context) {
	var req dto.ListItemsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	items, total, err := ctl.itemSvc.List(c.Request.Context(), repository.ItemFilter{
		AccountID:     req.AccountID,
		Status:        req.Status,
		LogisticType:  req.LogisticType,
		FreeShipping:  req.FreeShipping,
		Keyword:       req.Keyword,
		StaleSaleDays: req.StaleDays,
		Page:          req.Page,
		PageSize:      req.PageSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "查询商品失败: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": gin.H{
			"list":  items,
			"total": total,
			"page":  req.Page,
		},
	})
}

// Summary 账号维度的商品统计
// @Summary 商品统计
// @Tags 商品
// @Security BearerAuth
// @Param id path int true "账号 ID"
// @Router /api/v1/items/accounts/{id}/summary [get]
func (ctl *ItemController) Summary(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := ctl.itemSvc.AccountSummary(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "统计失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": summary,
	})
}

// BulkStatus 批量上下架
// @Summary 批量修改商品状态
// @Tags 商品
// @Security BearerAuth
// @Param body body dto.BulkStatusRequest true "批量操作参数"
// @Router /api/v1/items/bulk-status [post]
func (ctl *ItemController) BulkStatus(c *gin.Context) {
	var req dto.BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	result, err := ctl.itemSvc.BulkSetStatus(c.Request.Context(), req.AccountID, req.ItemIDs, req.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "批量操作失败: " + err.Error(),
			"data":    result,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "批量操作完成",
		"data":    result,
	})
}
