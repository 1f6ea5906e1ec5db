package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meli_dev_v1_202609/pkg/net"
)

// 美客多 multiget 单次最多 20 个商品
const MaxMultigetIDs = 20

// Client 美客多开放平台 API 客户端，token 由调用方传入
type Client struct {
	dispatcher net.Dispatcher
	baseURL    string
}

// NewClient 创建客户端。baseURL 不带末尾斜杠，例如 https://api.mercadolibre.com
func NewClient(dispatcher net.Dispatcher, baseURL string) *Client {
	return &Client{
		dispatcher: dispatcher,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// do 发送请求并读出响应体。网络层错误包装为 TransportError，
// 401/403 包装为 AuthError，其余非 2xx 包装为 APIError。
func (c *Client) do(ctx context.Context, accountID int64, req *http.Request) (int, []byte, error) {
	resp, err := c.dispatcher.Send(ctx, accountID, req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, body, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	default:
		return resp.StatusCode, body, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// ==================== 目录扫描 ====================

// ScanCatalog 拉取一页卖家商品 ID。cursor 为空表示从头开始。
// 游标失效（服务端返回 4xx 且本次带了游标）返回 ErrCursorExpired。
func (c *Client) ScanCatalog(ctx context.Context, accountID, sellerID int64, accessToken, cursor string, limit int) (*ScanPage, error) {
	params := url.Values{}
	params.Set("search_type", "scan")
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("scroll_id", cursor)
	}

	path := fmt.Sprintf("/users/%d/items/search", sellerID)
	req, err := net.BuildMeliRequest(http.MethodGet, c.baseURL, path, params, accessToken, nil)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, accountID, req)
	if err != nil {
		if cursor != "" && (status == http.StatusBadRequest || status == http.StatusNotFound) {
			log.Printf("[MeliClient] 账号 %d 的 scan 游标已失效 (status=%d)", accountID, status)
			return nil, ErrCursorExpired
		}
		return nil, err
	}

	var page ScanPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("解析 scan 响应失败: %w", err)
	}

	// 空字符串游标视同没有游标
	if page.ScrollID != nil && *page.ScrollID == "" {
		page.ScrollID = nil
	}
	return &page, nil
}

// ==================== 商品详情 ====================

// FetchDetails multiget 拉取一批商品详情，按请求顺序返回。
// 整体请求失败返回 error；单个商品失败只体现在对应 DetailResult 里。
func (c *Client) FetchDetails(ctx context.Context, accountID int64, accessToken string, itemIDs []string) ([]DetailResult, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	if len(itemIDs) > MaxMultigetIDs {
		return nil, fmt.Errorf("multiget 一次最多 %d 个商品，收到 %d 个", MaxMultigetIDs, len(itemIDs))
	}

	params := url.Values{}
	params.Set("ids", strings.Join(itemIDs, ","))

	req, err := net.BuildMeliRequest(http.MethodGet, c.baseURL, "/items", params, accessToken, nil)
	if err != nil {
		return nil, err
	}

	_, body, err := c.do(ctx, accountID, req)
	if err != nil {
		return nil, err
	}

	var entries []multigetEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("解析 multiget 响应失败: %w", err)
	}

	results := make([]DetailResult, 0, len(entries))
	for i, entry := range entries {
		res := DetailResult{Code: entry.Code}
		if entry.Code == http.StatusOK {
			var detail ItemDetail
			if err := json.Unmarshal(entry.Body, &detail); err != nil {
				res.Err = fmt.Errorf("解析商品详情失败: %w", err)
			} else {
				// 个别老接口 body 里不带 id，按请求顺序补
				if detail.ID == "" && i < len(itemIDs) {
					detail.ID = itemIDs[i]
				}
				res.Detail = &detail
			}
		} else {
			res.Err = &APIError{StatusCode: entry.Code, Body: string(entry.Body)}
		}
		results = append(results, res)
	}
	return results, nil
}

// ==================== 访问量 ====================

// FetchVisits 查询商品在时间窗内的访问量。接口存在两种响应形态
// （对象和按商品 ID 做 key 的 map），都要兼容。任何失败都按 0 处理，
// 访问量是锦上添花的数据，不值得让一轮同步翻车。
func (c *Client) FetchVisits(ctx context.Context, accountID int64, accessToken, itemID string, from, to time.Time) int {
	params := url.Values{}
	// 访问量接口只认 YYYY-MM-DD，不能带时间
	params.Set("date_from", from.UTC().Format("2006-01-02"))
	params.Set("date_to", to.UTC().Format("2006-01-02"))

	path := fmt.Sprintf("/items/%s/visits", itemID)
	req, err := net.BuildMeliRequest(http.MethodGet, c.baseURL, path, params, accessToken, nil)
	if err != nil {
		return 0
	}

	_, body, err := c.do(ctx, accountID, req)
	if err != nil {
		log.Printf("[MeliClient] 商品 %s 访问量查询失败: %v", itemID, err)
		return 0
	}

	var totalResp visitsTotalResp
	if err := json.Unmarshal(body, &totalResp); err == nil && totalResp.TotalVisits != nil {
		return *totalResp.TotalVisits
	}

	var mapResp map[string]visitsMapEntry
	if err := json.Unmarshal(body, &mapResp); err == nil {
		if entry, ok := mapResp[itemID]; ok {
			return entry.TotalVisits
		}
	}
	return 0
}

// ==================== 订单 ====================

// FetchLastSaleDate 查询商品最近一笔订单的成交时间，没有订单返回 nil
func (c *Client) FetchLastSaleDate(ctx context.Context, accountID, sellerID int64, accessToken, itemID string) (*time.Time, error) {
	params := url.Values{}
	params.Set("seller", strconv.FormatInt(sellerID, 10))
	params.Set("item", itemID)
	params.Set("sort", "date_desc")
	params.Set("limit", "1")

	req, err := net.BuildMeliRequest(http.MethodGet, c.baseURL, "/orders/search", params, accessToken, nil)
	if err != nil {
		return nil, err
	}

	_, body, err := c.do(ctx, accountID, req)
	if err != nil {
		return nil, err
	}

	var resp ordersSearchResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析订单响应失败: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	raw := resp.Results[0].DateClosed
	if raw == "" {
		raw = resp.Results[0].DateCreated
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("解析订单时间 %q 失败: %w", raw, err)
	}
	return &t, nil
}

// ==================== 运费 ====================

// FetchShippingCost 探测商品到某邮编的最低运费，顺带返回该档位的计费重量
// （克）。接口不给重量时重量返回 0。
func (c *Client) FetchShippingCost(ctx context.Context, accountID int64, accessToken, itemID, zipCode string) (float64, float64, error) {
	params := url.Values{}
	params.Set("zip_code", zipCode)

	path := fmt.Sprintf("/items/%s/shipping_options", itemID)
	req, err := net.BuildMeliRequest(http.MethodGet, c.baseURL, path, params, accessToken, nil)
	if err != nil {
		return 0, 0, err
	}

	_, body, err := c.do(ctx, accountID, req)
	if err != nil {
		return 0, 0, err
	}

	var resp shippingOptionsResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, fmt.Errorf("解析运费响应失败: %w", err)
	}
	if len(resp.Options) == 0 {
		return 0, 0, nil
	}

	cheapest := resp.Options[0]
	for _, opt := range resp.Options[1:] {
		if opt.Cost < cheapest.Cost {
			cheapest = opt
		}
	}
	return cheapest.Cost, cheapest.BillableWeight, nil
}

// ==================== 商品操作 ====================

// SetItemStatus 修改商品上下架状态（active/paused/closed）
func (c *Client) SetItemStatus(ctx context.Context, accountID int64, accessToken, itemID, status string) error {
	payload := map[string]string{"status": status}

	path := fmt.Sprintf("/items/%s", itemID)
	req, err := net.BuildMeliRequest(http.MethodPut, c.baseURL, path, nil, accessToken, payload)
	if err != nil {
		return err
	}

	_, _, err = c.do(ctx, accountID, req)
	return err
}
