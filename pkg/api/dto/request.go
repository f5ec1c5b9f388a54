package dto

// CycleQueryRequest 周期轨迹查询请求
type CycleQueryRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Source string `form:"source" binding:"omitempty,oneof=memory store"`
}

// GraphQueryRequest 执行计划查询请求
type GraphQueryRequest struct {
	Format string `form:"format" binding:"omitempty,oneof=json dot"`
	Stage  string `form:"stage" binding:"omitempty"`
}

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Stage  string `form:"stage" binding:"omitempty"`
}

// GetDefaultLimit 获取默认limit
func (r *CycleQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}

// GetDefaultSource 获取默认数据源
func (r *CycleQueryRequest) GetDefaultSource() string {
	if r.Source == "" {
		return "memory"
	}
	return r.Source
}

// GetDefaultFormat 获取默认输出格式
func (r *GraphQueryRequest) GetDefaultFormat() string {
	if r.Format == "" {
		return "json"
	}
	return r.Format
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
