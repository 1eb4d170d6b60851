package api

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/kalambet/localdesk/internal/view"
)

// parseCriteria reads view parameters from a query string:
// q, eq.<field>, min.<field>, max.<field>, sort and desc.
func parseCriteria(q url.Values) view.Criteria {
	c := view.Criteria{Search: q.Get("q")}

	ranges := map[string]*view.Range{}
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch {
		case strings.HasPrefix(key, "eq."):
			if c.Equals == nil {
				c.Equals = map[string]string{}
			}
			c.Equals[strings.TrimPrefix(key, "eq.")] = v
		case strings.HasPrefix(key, "min."):
			rangeFor(ranges, strings.TrimPrefix(key, "min.")).Min = v
		case strings.HasPrefix(key, "max."):
			rangeFor(ranges, strings.TrimPrefix(key, "max.")).Max = v
		}
	}

	fields := make([]string, 0, len(ranges))
	for f := range ranges {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		c.Ranges = append(c.Ranges, *ranges[f])
	}

	if field := q.Get("sort"); field != "" {
		desc, _ := strconv.ParseBool(q.Get("desc"))
		c.Sort = &view.Sort{Field: field, Desc: desc}
	}
	return c
}

func rangeFor(m map[string]*view.Range, field string) *view.Range {
	r, ok := m[field]
	if !ok {
		r = &view.Range{Field: field}
		m[field] = r
	}
	return r
}

// criteriaArgs converts MCP tool arguments into the same query form.
func criteriaArgs(args map[string]any) url.Values {
	q := url.Values{}
	for k, v := range args {
		switch k {
		case "collection", "limit":
			continue
		case "filters":
			if m, ok := v.(map[string]any); ok {
				for f, fv := range m {
					q.Set("eq."+f, toString(fv))
				}
			}
			continue
		}
		q.Set(k, toString(v))
	}
	return q
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
