package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ==================== 商品同步标记 ====================

const (
	ItemFlagPending         = 0 // 仅发现，详情未拉取
	ItemFlagSynced          = 1 // 详情已同步
	ItemFlagUpdateRequested = 2 // 本地改过状态，等待下轮详情覆盖
)

// 美客多商品状态（listing status）
const (
	ItemStatusActive = "active"
	ItemStatusPaused = "paused"
	ItemStatusClosed = "closed"
)

// 运费录入状态
const (
	WeightStatusUnknown  = "unknown"
	WeightStatusEstimate = "estimate"
	WeightStatusProbed   = "probed"
)

// Item 美客多商品本地镜像，meli_item_id 全站唯一
type Item struct {
	BaseModel

	AccountID int64    `gorm:"index:idx_items_account_flag;not null" json:"account_id"`
	Account   *Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`

	MeliItemID string `gorm:"size:20;uniqueIndex;not null" json:"meli_item_id"`
	Title      string `gorm:"size:255" json:"title"`

	Price         float64 `gorm:"type:decimal(12,2);default:0" json:"price"`
	OriginalPrice float64 `gorm:"type:decimal(12,2);default:0" json:"original_price"`
	CurrencyID    string  `gorm:"size:5;default:'BRL'" json:"currency_id"`

	Status             string `gorm:"size:20;index" json:"status"`
	Permalink          string `gorm:"size:500" json:"permalink"`
	ThumbnailURL       string `gorm:"size:500" json:"thumbnail_url"`
	SecureThumbnailURL string `gorm:"size:500" json:"secure_thumbnail_url"`

	SoldQuantity      int `gorm:"default:0" json:"sold_quantity"`
	AvailableQuantity int `gorm:"default:0" json:"available_quantity"`

	ShippingMode string `gorm:"size:30" json:"shipping_mode"`
	LogisticType string `gorm:"size:30;index" json:"logistic_type"`
	FreeShipping bool   `gorm:"default:false" json:"free_shipping"`

	CatalogListing bool   `gorm:"default:false" json:"catalog_listing"`
	CategoryID     string `gorm:"size:30" json:"category_id"`

	HealthScore float64 `gorm:"type:decimal(4,2);default:0" json:"health_score"`
	VisitCount  int     `gorm:"default:0" json:"visit_count"`

	// date_created 由美客多返回，首次写入后不再覆盖
	DateCreated *time.Time `json:"date_created"`
	LastSaleAt  *time.Time `json:"last_sale_at"`

	// 三个参考地区（东南/东北/南部邮编）的运费探测结果
	FreightSudeste  float64 `gorm:"type:decimal(10,2);default:0" json:"freight_sudeste"`
	FreightNordeste float64 `gorm:"type:decimal(10,2);default:0" json:"freight_nordeste"`
	FreightSul      float64 `gorm:"type:decimal(10,2);default:0" json:"freight_sul"`
	BillableWeight  float64 `gorm:"type:decimal(10,3);default:0" json:"billable_weight"`
	WeightStatus    string  `gorm:"size:20;default:'unknown'" json:"weight_status"`

	Tags       pq.StringArray `gorm:"type:text[]" json:"tags"`
	Attributes datatypes.JSON `gorm:"type:jsonb" json:"attributes"`
	Pictures   datatypes.JSON `gorm:"type:jsonb" json:"pictures"`

	SyncFlag     int        `gorm:"default:0;index:idx_items_account_flag" json:"sync_flag"`
	SyncError    string     `gorm:"size:255" json:"sync_error"`
	MeliSyncedAt *time.Time `json:"meli_synced_at"`
}

func (Item) TableName() string {
	return "items"
}
