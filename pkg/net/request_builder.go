package net

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// BuildMeliRequest 构造美客多 API 请求，统一挂 Bearer 头。
// body 非 nil 时按 JSON 编码。
func BuildMeliRequest(method, baseURL, path string, params url.Values, accessToken string, body interface{}) (*http.Request, error) {
	fullURL := baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("编码请求体失败: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}
