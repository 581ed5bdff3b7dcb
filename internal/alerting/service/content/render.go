package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/dimension"
	"github.com/rs/zerolog/log"
)

// Result 一次渲染的标题与正文
type Result struct {
	Shape       Shape
	Title       string
	Content     string
	Diagnostics []string
}

const fusedTitle = "{{alarm.name}}{{alarm.display_type}}"

// variable 匹配 {{ a.b.c }} 形式的变量
var variable = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// 模板关键字不能改写成变量
var keywords = map[string]bool{
	"end": true, "else": true, "break": true, "continue": true, "nil": true, "true": true, "false": true,
}

// Render 按动作上下文渲染标题和正文
func Render(c *actioncontext.Context) Result {
	shape := SelectShape(c)
	res := Result{Shape: shape}
	if shape == ShapeNone {
		return res
	}
	view := NewView(c, shape)
	lookup := func(path string) (any, bool) {
		if name, ok := strings.CutPrefix(path, "content."); ok {
			return view.Field(name)
		}
		return c.Lookup(path)
	}

	title := strings.ReplaceAll(c.TitleTemplate(), fusedTitle, "{{alarm.name}} {{alarm.display_type}}")
	var err error
	res.Title, err = Execute("title", title, lookup)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, err.Error())
	}
	res.Title = strings.TrimSpace(res.Title)

	res.Content, err = Execute("content", c.ContentTemplate(), lookup)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, err.Error())
	}
	res.Content = strings.Trim(res.Content, "\n")
	return res
}

// Execute 把 {{ a.b }} 改写为 field 调用后用 text/template 执行。
// 模板无法解析或执行时退回到逐个变量替换，并返回原因
func Execute(name, text string, lookup func(path string) (any, bool)) (string, error) {
	field := func(path string) string {
		v, ok := lookup(path)
		if !ok {
			return ""
		}
		return Stringify(v)
	}
	src := variable.ReplaceAllStringFunc(text, func(m string) string {
		path := variable.FindStringSubmatch(m)[1]
		if keywords[path] {
			return m
		}
		return `{{field "` + path + `"}}`
	})

	tpl, err := template.New(name).Funcs(FuncMap(field)).Parse(src)
	if err == nil {
		var buf bytes.Buffer
		if err = tpl.Execute(&buf, nil); err == nil {
			return buf.String(), nil
		}
	}
	log.Warn().Err(err).Str("template", name).Msg("template render failed, falling back to substitution")
	out := variable.ReplaceAllStringFunc(text, func(m string) string {
		return field(variable.FindStringSubmatch(m)[1])
	})
	return out, fmt.Errorf("%s template: %w", name, err)
}

// FuncMap 模板中可用的函数
func FuncMap(field func(path string) string) template.FuncMap {
	return template.FuncMap{
		"field":    field,
		"join":     strings.Join,
		"truncate": func(n int, s string) string { return dimension.Truncate(s, n) },
		"json": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return "null"
			}
			return string(b)
		},
		"default": func(def, v string) string {
			if v == "" {
				return def
			}
			return v
		},
	}
}

// Stringify 模板变量的输出形式，空值输出为空串
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
