package meli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexBool 兼容美客多返回的多种布尔写法：true/false、0/1、"true"/"1"。
// 历史接口和新接口混用，不在入口统一就会污染到落库。
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)

	switch strings.ToLower(s) {
	case "true", "1":
		*b = true
		return nil
	case "false", "0", "", "null":
		*b = false
		return nil
	}

	// 数字形式（例如 1.0）
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*b = f != 0
		return nil
	}

	return fmt.Errorf("meli: 无法解析布尔值 %q", string(data))
}

func (b FlexBool) Bool() bool {
	return bool(b)
}

// ==================== 目录扫描 ====================

// ScanPage 一页 scan 结果
type ScanPage struct {
	Results  []string `json:"results"`
	ScrollID *string  `json:"scroll_id"`
	Paging   struct {
		Total int `json:"total"`
	} `json:"paging"`
}

// ==================== 商品详情 ====================

// Picture 商品图片
type Picture struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
}

// ItemShipping 商品运输信息
type ItemShipping struct {
	Mode         string   `json:"mode"`
	LogisticType string   `json:"logistic_type"`
	FreeShipping FlexBool `json:"free_shipping"`
}

// ItemDetail 商品详情（multiget body）
type ItemDetail struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	CategoryID        string          `json:"category_id"`
	Price             float64         `json:"price"`
	OriginalPrice     float64         `json:"original_price"`
	CurrencyID        string          `json:"currency_id"`
	Status            string          `json:"status"`
	Permalink         string          `json:"permalink"`
	Thumbnail         string          `json:"thumbnail"`
	SecureThumbnail   string          `json:"secure_thumbnail"`
	SoldQuantity      int             `json:"sold_quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	CatalogListing    FlexBool        `json:"catalog_listing"`
	Health            *float64        `json:"health"`
	DateCreated       string          `json:"date_created"`
	Tags              []string        `json:"tags"`
	Pictures          []Picture       `json:"pictures"`
	Shipping          ItemShipping    `json:"shipping"`
	Attributes        json.RawMessage `json:"attributes"`
}

// DetailResult multiget 中单个商品的结果。Code 非 200 时 Detail 为 nil。
type DetailResult struct {
	Code   int
	Detail *ItemDetail
	Err    error
}

// multigetEntry multiget 响应中的一项
type multigetEntry struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}

// ==================== 访问量 ====================

// visitsTotalResp 访问量接口的对象形式：{"total_visits": 42}
type visitsTotalResp struct {
	TotalVisits *int `json:"total_visits"`
}

// visitsMapEntry 访问量接口的 map 形式：{"MLB123": {"total_visits": 42}}
type visitsMapEntry struct {
	TotalVisits int `json:"total_visits"`
}

// ==================== 订单 ====================

type ordersSearchResp struct {
	Results []struct {
		DateClosed  string `json:"date_closed"`
		DateCreated string `json:"date_created"`
	} `json:"results"`
}

// ==================== 运费 ====================

type shippingOptionsResp struct {
	Destination struct {
		ZipCode string `json:"zip_code"`
	} `json:"destination"`
	Options []struct {
		Cost           float64 `json:"cost"`
		BaseCost       float64 `json:"base_cost"`
		BillableWeight float64 `json:"billable_weight"`
		Name           string  `json:"name"`
	} `json:"options"`
}

// ==================== OAuth ====================

// TokenResp token 端点响应
type TokenResp struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// UserInfo /users/me 响应
type UserInfo struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	SiteID   string `json:"site_id"`
}
