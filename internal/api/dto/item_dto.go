package dto

// ListItemsRequest 商品列表查询参数
type ListItemsRequest struct {
	AccountID    int64  `form:"account_id"`
	Status       string `form:"status"`
	LogisticType string `form:"logistic_type"`
	FreeShipping *bool  `form:"free_shipping"`
	Keyword      string `form:"keyword"`
	StaleDays    int    `form:"stale_days"`
	Page         int    `form:"page,default=1"`
	PageSize     int    `form:"page_size,default=20"`
}

// BulkStatusRequest 批量上下架请求
type BulkStatusRequest struct {
	AccountID int64    `json:"account_id" binding:"required"`
	ItemIDs   []string `json:"item_ids" binding:"required,min=1"`
	Status    string   `json:"status" binding:"required,oneof=active paused closed"`
}
