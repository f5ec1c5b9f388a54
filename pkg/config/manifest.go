package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

// ErrInvalidManifest 任务清单无效
var ErrInvalidManifest = errors.New("任务清单无效")

// Manifest 声明式任务清单（对外导出）
// 支持YAML与HCL两种格式，解析后结构一致
// 任务参数中形如${name}的值在构建任务时用Vars替换
type Manifest struct {
	Stages    []string               `yaml:"stages"`
	Vars      map[string]string      `yaml:"vars"`
	Resources map[string]interface{} `yaml:"resources"`
	Tasks     []TaskSpec             `yaml:"tasks"`
}

// TaskSpec 清单中的单个任务（对外导出）
type TaskSpec struct {
	ID          string            `yaml:"id"`
	Job         string            `yaml:"job"`
	Stage       string            `yaml:"stage"`
	Description string            `yaml:"description"`
	Reads       []string          `yaml:"reads"`
	Writes      []string          `yaml:"writes"`
	After       []string          `yaml:"after"`
	OneShot     bool              `yaml:"one_shot"`
	Timeout     time.Duration     `yaml:"timeout"`
	Params      map[string]string `yaml:"params"`
}

type hclManifest struct {
	Stages    []string          `hcl:"stages,optional"`
	Vars      map[string]string `hcl:"vars,optional"`
	Resources []hclResource     `hcl:"resource,block"`
	Tasks     []hclTask         `hcl:"task,block"`
}

type hclResource struct {
	ID    string    `hcl:"id,label"`
	Value cty.Value `hcl:"value"`
}

type hclTask struct {
	ID          string            `hcl:"id,label"`
	Job         string            `hcl:"job"`
	Stage       string            `hcl:"stage,optional"`
	Description string            `hcl:"description,optional"`
	Reads       []string          `hcl:"reads,optional"`
	Writes      []string          `hcl:"writes,optional"`
	After       []string          `hcl:"after,optional"`
	OneShot     bool              `hcl:"one_shot,optional"`
	Timeout     string            `hcl:"timeout,optional"`
	Params      map[string]string `hcl:"params,optional"`
}

// LoadManifest 加载任务清单文件（对外导出）
// 扩展名为.hcl时按HCL解析，否则按YAML解析
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取任务清单失败: %w", err)
	}
	return ParseManifest(data, path)
}

// ParseManifest 解析任务清单内容，filename决定格式
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	if strings.EqualFold(filepath.Ext(filename), ".hcl") {
		return parseHCLManifest(data, filename)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析YAML任务清单失败: %w", err)
	}
	return &m, nil
}

func parseHCLManifest(data []byte, filename string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("解析HCL任务清单失败 %s: %s", filename, diags.Error())
	}

	var raw hclManifest
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("解码HCL任务清单失败 %s: %s", filename, diags.Error())
	}

	m := &Manifest{Stages: raw.Stages, Vars: raw.Vars}
	if len(raw.Resources) > 0 {
		m.Resources = make(map[string]interface{}, len(raw.Resources))
		for _, r := range raw.Resources {
			v, err := ctyValueToInterface(r.Value)
			if err != nil {
				return nil, fmt.Errorf("资源 %s 的值无效: %w", r.ID, err)
			}
			m.Resources[r.ID] = v
		}
	}
	for _, t := range raw.Tasks {
		spec := TaskSpec{
			ID:          t.ID,
			Job:         t.Job,
			Stage:       t.Stage,
			Description: t.Description,
			Reads:       t.Reads,
			Writes:      t.Writes,
			After:       t.After,
			OneShot:     t.OneShot,
			Params:      t.Params,
		}
		if t.Timeout != "" {
			d, err := time.ParseDuration(t.Timeout)
			if err != nil {
				return nil, fmt.Errorf("任务 %s 的timeout无效: %w", t.ID, err)
			}
			spec.Timeout = d
		}
		m.Tasks = append(m.Tasks, spec)
	}
	return m, nil
}

// ctyValueToInterface 把HCL值转换为Go值；整数转换为int，与YAML解码结果一致
func ctyValueToInterface(val cty.Value) (interface{}, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if bf.IsInt() {
				i, _ := bf.Int64()
				return int(i), nil
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]interface{})
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() {
		var out []interface{}
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("不支持的类型: %s", val.Type().FriendlyName())
}

// Validate 校验任务清单（对外导出）
// jobs非nil时同时校验job名称已注册
func (m *Manifest) Validate(jobs *task.JobRegistry) error {
	stages := make(map[string]bool)
	for i, st := range m.Stages {
		if st == "" {
			return fmt.Errorf("%w: stages[%d]不能为空", ErrInvalidManifest, i)
		}
		if stages[st] {
			return fmt.Errorf("%w: stages中存在重复的阶段: %s", ErrInvalidManifest, st)
		}
		stages[st] = true
	}

	ids := make(map[string]bool)
	for i, t := range m.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: tasks[%d].id不能为空", ErrInvalidManifest, i)
		}
		if ids[t.ID] {
			return fmt.Errorf("%w: tasks中存在重复的id: %s", ErrInvalidManifest, t.ID)
		}
		ids[t.ID] = true

		if t.Job == "" {
			return fmt.Errorf("%w: tasks[%d].job不能为空", ErrInvalidManifest, i)
		}
		if jobs != nil {
			if _, err := jobs.Job(t.Job); err != nil {
				return fmt.Errorf("%w: tasks[%d]: %v", ErrInvalidManifest, i, err)
			}
		}
		if t.Timeout < 0 {
			return fmt.Errorf("%w: tasks[%d].timeout不能为负数", ErrInvalidManifest, i)
		}
		if len(m.Stages) > 0 && t.Stage != "" && !stages[t.Stage] {
			return fmt.Errorf("%w: tasks[%d].stage %s 未在stages中声明", ErrInvalidManifest, i, t.Stage)
		}
		for _, r := range append(append([]string(nil), t.Reads...), t.Writes...) {
			if r == "" {
				return fmt.Errorf("%w: tasks[%d] 资源名不能为空", ErrInvalidManifest, i)
			}
		}
		if _, err := ExpandParams(t.Params, m.Vars); err != nil {
			return fmt.Errorf("%w: tasks[%d]: %v", ErrInvalidManifest, i, err)
		}
	}
	return nil
}

// BuildTasks 把清单转换为任务，按清单顺序返回（对外导出）
func (m *Manifest) BuildTasks(jobs *task.JobRegistry) ([]task.Task, error) {
	if err := m.Validate(jobs); err != nil {
		return nil, err
	}
	tasks := make([]task.Task, 0, len(m.Tasks))
	for _, spec := range m.Tasks {
		fn, err := jobs.Job(spec.Job)
		if err != nil {
			return nil, err
		}
		params, err := ExpandParams(spec.Params, m.Vars)
		if err != nil {
			return nil, err
		}
		opts := []task.Option{
			task.InStage(spec.Stage),
			task.After(spec.After...),
			task.WithTimeout(spec.Timeout),
			task.WithDescription(spec.Description),
			task.WithParams(params),
		}
		for _, r := range spec.Reads {
			opts = append(opts, task.Reads(resource.ID(r)))
		}
		for _, w := range spec.Writes {
			opts = append(opts, task.Writes(resource.ID(w)))
		}
		if spec.OneShot {
			opts = append(opts, task.OneShot())
		}
		tasks = append(tasks, task.New(spec.ID, fn, opts...))
	}
	return tasks, nil
}

// InitialResources 清单声明的资源初值
func (m *Manifest) InitialResources() map[resource.ID]interface{} {
	out := make(map[resource.ID]interface{}, len(m.Resources))
	for k, v := range m.Resources {
		out[resource.ID(k)] = v
	}
	return out
}
