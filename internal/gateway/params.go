package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Params is the canonicalized, typed form of a request's query parameters,
// grouped by the prefix named in each dotted key (group.name=value).
type Params map[string]map[string]any

// ParseParams parses raw query values shaped as dotted keys
// "group.name=value" into a Params, grouping by the known prefixes in
// allowedGroups and coercing each value per SPEC_FULL.md §6.2. An unknown
// group or a malformed key is a *RequestError.
func ParseParams(query url.Values, allowedGroups []string) (Params, error) {
	allowed := make(map[string]bool, len(allowedGroups))
	for _, g := range allowedGroups {
		allowed[g] = true
	}

	out := make(Params)
	for k, vs := range query {
		if len(vs) == 0 {
			continue
		}
		group, name, ok := strings.Cut(k, ".")
		if !ok || group == "" || name == "" {
			return nil, &RequestError{Msg: fmt.Sprintf("malformed parameter key %q: expected group.name", k)}
		}
		if !allowed[group] {
			return nil, &RequestError{Msg: fmt.Sprintf("unknown parameter group %q", group)}
		}
		if out[group] == nil {
			out[group] = make(map[string]any)
		}
		out[group][name] = coerce(vs[len(vs)-1])
	}
	return out, nil
}

// coerce maps a raw query token to bool, int64, float64, or string — in
// that priority order — per SPEC_FULL.md §6.2.
func coerce(tok string) any {
	switch tok {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	return tok
}

// Canonical produces a stable, order-independent JSON encoding of p:
// groups sorted, keys within each group sorted, values in their coerced
// native type. Canonical(Canonical-equivalent-input) always yields byte-
// identical output, which is what makes it safe to hash directly.
func (p Params) Canonical() []byte {
	groups := make([]string, 0, len(p))
	for g := range p {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var b strings.Builder
	b.WriteByte('{')
	for gi, g := range groups {
		if gi > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, g)
		b.WriteByte(':')
		b.WriteByte('{')

		names := make([]string, 0, len(p[g]))
		for n := range p[g] {
			names = append(names, n)
		}
		sort.Strings(names)
		for ni, n := range names {
			if ni > 0 {
				b.WriteByte(',')
			}
			writeJSONString(&b, n)
			b.WriteByte(':')
			writeJSONValue(&b, p[g][n])
		}
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return []byte(b.String())
}

func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

func writeJSONValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		writeJSONString(b, val)
	default:
		writeJSONString(b, fmt.Sprintf("%v", val))
	}
}
