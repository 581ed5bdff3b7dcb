package actioncontext

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/tidwall/gjson"
)

// ScoredExperience 命中的经验及其得分
type ScoredExperience struct {
	Experience *model.Experience
	Score      int
}

// MatchExperiences 按经验顺序返回命中的经验。
// 指标经验按告警名+指标匹配，得分 0；维度经验需条件组命中，得分为条件个数
func MatchExperiences(exps []*model.Experience, alert *model.AlertDocument) []ScoredExperience {
	if alert == nil {
		return nil
	}
	// 只有非指标类告警按告警名匹配
	alertName := ""
	if len(alert.Event.Metric) == 0 {
		alertName = alert.AlertName
	}
	dims := experienceDimensions(alert)

	var out []ScoredExperience
	for _, exp := range exps {
		if exp.AlertName != alertName || !slices.Equal(exp.Metrics, alert.Event.Metric) {
			continue
		}
		switch exp.Type {
		case model.ExperienceMetric:
			out = append(out, ScoredExperience{Experience: exp})
		case model.ExperienceDimension:
			if matchConditions(exp.Conditions, dims) {
				out = append(out, ScoredExperience{Experience: exp, Score: len(exp.Conditions)})
			}
		}
	}
	return out
}

// MergeRemarks 最高分的经验说明以 " | " 拼接
func MergeRemarks(matched []ScoredExperience) string {
	best := -1
	for _, m := range matched {
		best = max(best, m.Score)
	}
	var parts []string
	for _, m := range matched {
		if m.Score == best && m.Experience.Description != "" {
			parts = append(parts, m.Experience.Description)
		}
	}
	return strings.Join(parts, " | ")
}

// experienceDimensions 告警维度加上异常点维度，后者优先
func experienceDimensions(alert *model.AlertDocument) map[string]string {
	dims := make(map[string]string, len(alert.Dimensions))
	for _, d := range alert.Dimensions {
		dims[d.Key] = d.Value
	}
	alert.Event.OriginAlarm().Get("data.dimensions").ForEach(func(k, v gjson.Result) bool {
		dims[k.String()] = model.ScalarString(v)
		return true
	})
	return dims
}

// matchConditions 以 or 切分为条件组，任一组全部命中即可
func matchConditions(conds []model.ExperienceCondition, dims map[string]string) bool {
	if len(conds) == 0 {
		return true
	}
	var groups [][]model.ExperienceCondition
	for i, c := range conds {
		if i == 0 || strings.EqualFold(c.Condition, "or") {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], c)
	}
	for _, group := range groups {
		ok := true
		for _, c := range group {
			if !matchCondition(c, dims) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func matchCondition(c model.ExperienceCondition, dims map[string]string) bool {
	v, ok := dims[c.Key]
	if !ok {
		switch c.Method {
		case "neq", "exclude", "nreg":
			return true
		}
		return false
	}
	switch c.Method {
	case "eq":
		return slices.Contains(c.Value, v)
	case "neq":
		return !slices.Contains(c.Value, v)
	case "include":
		return anyValue(c.Value, func(x string) bool { return strings.Contains(v, x) })
	case "exclude":
		return !anyValue(c.Value, func(x string) bool { return strings.Contains(v, x) })
	case "reg":
		return anyValue(c.Value, func(x string) bool { return regexMatch(x, v) })
	case "nreg":
		return !anyValue(c.Value, func(x string) bool { return regexMatch(x, v) })
	case "gt", "gte", "lt", "lte":
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		return anyValue(c.Value, func(x string) bool {
			target, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return false
			}
			switch c.Method {
			case "gt":
				return n > target
			case "gte":
				return n >= target
			case "lt":
				return n < target
			default:
				return n <= target
			}
		})
	}
	return false
}

func anyValue(values []string, fn func(string) bool) bool {
	for _, x := range values {
		if fn(x) {
			return true
		}
	}
	return false
}

func regexMatch(pattern, v string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(v)
}
