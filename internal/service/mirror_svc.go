package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/pkg/meli"
)

// ErrMissingItemID 详情缺少商品 ID，数据不可信，拒绝落库
var ErrMissingItemID = errors.New("商品详情缺少 ID")

// FreightInfo 运费探测结果，nil 字段表示该地区本轮没探测
type FreightInfo struct {
	Sudeste        *float64
	Nordeste       *float64
	Sul            *float64
	BillableWeight *float64
}

// MirrorService 把美客多返回的商品详情归一化后写入本地镜像
type MirrorService struct {
	itemRepo repository.ItemRepository
}

// NewMirrorService 创建镜像服务
func NewMirrorService(itemRepo repository.ItemRepository) *MirrorService {
	return &MirrorService{itemRepo: itemRepo}
}

// UpsertItem 归一化并幂等写入一条商品详情。
// visits 和 lastSale 是增强数据，由编排层按需传入。
func (s *MirrorService) UpsertItem(ctx context.Context, accountID int64, detail *meli.ItemDetail, visits int, lastSale *time.Time, freight *FreightInfo) error {
	if detail == nil || detail.ID == "" {
		return ErrMissingItemID
	}

	item := &model.Item{
		AccountID:         accountID,
		MeliItemID:        detail.ID,
		Title:             detail.Title,
		Price:             detail.Price,
		OriginalPrice:     detail.OriginalPrice,
		CurrencyID:        detail.CurrencyID,
		Status:            detail.Status,
		Permalink:         detail.Permalink,
		ThumbnailURL:      detail.Thumbnail,
		SoldQuantity:      detail.SoldQuantity,
		AvailableQuantity: detail.AvailableQuantity,
		ShippingMode:      detail.Shipping.Mode,
		LogisticType:      detail.Shipping.LogisticType,
		FreeShipping:      detail.Shipping.FreeShipping.Bool(),
		CatalogListing:    detail.CatalogListing.Bool(),
		CategoryID:        detail.CategoryID,
		VisitCount:        visits,
		LastSaleAt:        lastSale,
		Tags:              pq.StringArray(detail.Tags),
		WeightStatus:      model.WeightStatusUnknown,
	}

	// 币种缺省按巴西雷亚尔
	if item.CurrencyID == "" {
		item.CurrencyID = "BRL"
	}

	// 数量字段偶尔出现负数（接口侧脏数据），一律钳到 0
	if item.SoldQuantity < 0 {
		item.SoldQuantity = 0
	}
	if item.AvailableQuantity < 0 {
		item.AvailableQuantity = 0
	}

	if detail.Health != nil {
		item.HealthScore = *detail.Health
	}

	// 安全缩略图优先取首图的 secure_url
	item.SecureThumbnailURL = detail.SecureThumbnail
	if len(detail.Pictures) > 0 && detail.Pictures[0].SecureURL != "" {
		item.SecureThumbnailURL = detail.Pictures[0].SecureURL
	}

	if detail.DateCreated != "" {
		if t, err := time.Parse(time.RFC3339, detail.DateCreated); err == nil {
			item.DateCreated = &t
		}
	}

	if len(detail.Attributes) > 0 {
		item.Attributes = datatypes.JSON(detail.Attributes)
	}
	if len(detail.Pictures) > 0 {
		if data, err := json.Marshal(detail.Pictures); err == nil {
			item.Pictures = datatypes.JSON(data)
		}
	}

	if freight != nil {
		if freight.Sudeste != nil {
			item.FreightSudeste = *freight.Sudeste
		}
		if freight.Nordeste != nil {
			item.FreightNordeste = *freight.Nordeste
		}
		if freight.Sul != nil {
			item.FreightSul = *freight.Sul
		}
		switch {
		case freight.BillableWeight != nil:
			item.BillableWeight = *freight.BillableWeight
			item.WeightStatus = model.WeightStatusProbed
		case freight.Sudeste != nil || freight.Nordeste != nil || freight.Sul != nil:
			// 运费探到了但接口没给重量，只能算估计值
			item.WeightStatus = model.WeightStatusEstimate
		}
	}

	if err := s.itemRepo.UpsertDetail(ctx, item); err != nil {
		return fmt.Errorf("写入商品 %s 镜像失败: %w", detail.ID, err)
	}
	return nil
}
