// Package feature 定义了六个生成工具的配置：标签、系统提示词和请求包装方式。
// 编排器只有一份实现，不同工具之间的差异全部落在 Profile 上。
package feature

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 功能标签，同时用作会话的 feature 字段和刷新信号的主题。
const (
	Notes         = "notes"
	Summarizer    = "summarizer"
	DoubtSolver   = "doubt-solver"
	QuestionPaper = "question-paper"
	LessonPlan    = "lesson-plan"
	AnswerKey     = "answer-key"
)

// Profile 描述一个工具。Instruction 中的 {{question}} 会被替换为用户输入。
type Profile struct {
	Tag          string `yaml:"tag"`
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Instruction  string `yaml:"instruction"`
}

// Shape 按 Instruction 包装用户问题，没有 Instruction 时原样返回。
func (p Profile) Shape(question string) string {
	if p.Instruction == "" {
		return question
	}
	if strings.Contains(p.Instruction, "{{question}}") {
		return strings.ReplaceAll(p.Instruction, "{{question}}", question)
	}
	return p.Instruction + "\n\n" + question
}

// Registry 按标签查找 Profile，保持注册顺序。
type Registry struct {
	order    []string
	profiles map[string]Profile
}

// NewRegistry 用给定的 Profile 构造 Registry，标签重复时后者覆盖前者。
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		r.put(p)
	}
	return r
}

func (r *Registry) put(p Profile) {
	if _, ok := r.profiles[p.Tag]; !ok {
		r.order = append(r.order, p.Tag)
	}
	r.profiles[p.Tag] = p
}

// Get 返回标签对应的 Profile。
func (r *Registry) Get(tag string) (Profile, bool) {
	p, ok := r.profiles[tag]
	return p, ok
}

// Tags 按注册顺序返回所有标签。
func (r *Registry) Tags() []string {
	return append([]string(nil), r.order...)
}

type overrideFile struct {
	Features []Profile `yaml:"features"`
}

// LoadOverrides 读取 YAML 文件并覆盖同名 Profile 的非空字段；未知标签会被新增。
func LoadOverrides(base *Registry, path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取功能配置失败: %w", err)
	}
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析功能配置失败: %w", err)
	}

	out := NewRegistry()
	for _, tag := range base.order {
		out.put(base.profiles[tag])
	}
	for _, o := range file.Features {
		if o.Tag == "" {
			return nil, fmt.Errorf("功能配置缺少 tag")
		}
		p, ok := out.profiles[o.Tag]
		if !ok {
			p = Profile{Tag: o.Tag}
		}
		if o.Name != "" {
			p.Name = o.Name
		}
		if o.SystemPrompt != "" {
			p.SystemPrompt = o.SystemPrompt
		}
		if o.Instruction != "" {
			p.Instruction = o.Instruction
		}
		if p.SystemPrompt == "" {
			return nil, fmt.Errorf("功能 %s 缺少 system_prompt", o.Tag)
		}
		out.put(p)
	}
	return out, nil
}
