package facet

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed scenario_labels.yaml
var defaultScenarioLabels []byte

// LabelGroup 一级标签及其二级子标签
type LabelGroup struct {
	ID       string       `yaml:"id" json:"id"`
	Name     string       `yaml:"name" json:"name"`
	Children []LabelGroup `yaml:"children,omitempty" json:"children,omitempty"`
}

// FileLabeler 从 yaml 文件加载标签树，只加载一次；path 为空时使用内置标签
type FileLabeler struct {
	path   string
	once   sync.Once
	groups []LabelGroup
	err    error
}

func NewFileLabeler(path string) *FileLabeler {
	return &FileLabeler{path: path}
}

func (l *FileLabeler) ScenarioLabels(context.Context) ([]LabelGroup, error) {
	l.once.Do(func() {
		data := defaultScenarioLabels
		if l.path != "" {
			b, err := os.ReadFile(l.path)
			if err != nil {
				l.err = fmt.Errorf("read scenario labels: %w", err)
				return
			}
			data = b
		}
		l.groups, l.err = ParseLabels(data)
	})
	return l.groups, l.err
}

// ParseLabels 解析标签树
func ParseLabels(data []byte) ([]LabelGroup, error) {
	var groups []LabelGroup
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse scenario labels: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("parse scenario labels: empty label tree")
	}
	return groups, nil
}
