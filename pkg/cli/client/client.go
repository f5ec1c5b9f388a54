package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
)

// Client 帧调度器调试API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Cycle API ==========

// ListCycles 列出周期轨迹摘要，source为memory或store
func (c *Client) ListCycles(source string, limit, offset int) (*dto.ListResponse[dto.CycleSummary], error) {
	params := url.Values{}
	if source != "" {
		params.Set("source", source)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	path := "/api/v1/cycles"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.CycleSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetCycle 获取单个周期的完整轨迹
func (c *Client) GetCycle(id string) (*trace.ExecutionTrace, error) {
	var resp dto.APIResponse[*trace.ExecutionTrace]
	if err := c.get("/api/v1/cycles/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return resp.Data, nil
}

// ========== Plan API ==========

// ListTasks 列出已注册任务，stage为空时列出全部
func (c *Client) ListTasks(stage string, limit int) (*dto.ListResponse[dto.TaskSummary], error) {
	params := url.Values{}
	if stage != "" {
		params.Set("stage", stage)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/tasks"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.TaskSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// Graph 获取执行计划
func (c *Client) Graph() (*dto.GraphResponse, error) {
	var resp dto.APIResponse[dto.GraphResponse]
	if err := c.get("/api/v1/graph", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GraphDOT 获取DOT格式的执行计划
func (c *Client) GraphDOT() (string, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/v1/graph?format=dot")
	if err != nil {
		return "", fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr dto.APIResponse[any]
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return "", errors.New(apiErr.Message)
		}
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return string(body), nil
}

// ========== Health API ==========

// Stats 引擎统计
func (c *Client) Stats() (*engine.Stats, error) {
	var resp dto.APIResponse[engine.Stats]
	if err := c.get("/api/v1/stats", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP Methods ==========

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}

	return nil
}
