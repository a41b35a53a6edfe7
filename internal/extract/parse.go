package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"homevox/internal/command"
)

var ErrEmptyResponse = errors.New("empty model response")

type wireParam struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type wireCommand struct {
	Summary     string      `json:"summary"`
	Action      string      `json:"action"`
	Parameters  []wireParam `json:"parameters"`
	MissingInfo string      `json:"missingInfo"`
}

type wireResult struct {
	Commands []wireCommand `json:"commands"`
}

// Parse decodes the model output into commands. Values arrive as text and are
// coerced to bool, number or string. A bare JSON array is accepted too.
func Parse(content string) ([]command.Command, error) {
	s := stripFence(content)
	if s == "" {
		return nil, ErrEmptyResponse
	}

	var res wireResult
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &res.Commands); err != nil {
			return nil, fmt.Errorf("unmarshal command list: %w (raw: %s)", err, content)
		}
	} else if err := json.Unmarshal([]byte(s), &res); err != nil {
		return nil, fmt.Errorf("unmarshal extraction result: %w (raw: %s)", err, content)
	}

	out := make([]command.Command, 0, len(res.Commands))
	for _, wc := range res.Commands {
		if strings.TrimSpace(wc.Action) == "" {
			continue
		}

		c := command.Command{
			Summary:     strings.TrimSpace(wc.Summary),
			Action:      strings.TrimSpace(wc.Action),
			MissingInfo: strings.TrimSpace(wc.MissingInfo),
		}
		for _, p := range wc.Parameters {
			key := strings.TrimSpace(p.Key)
			if key == "" || p.Value == nil {
				continue
			}
			if c.Parameters == nil {
				c.Parameters = make(map[string]any)
			}
			c.Parameters[key] = coerceValue(p.Value)
		}
		out = append(out, c)
	}

	return out, nil
}

func coerceValue(v any) any {
	switch x := v.(type) {
	case string:
		return command.Coerce(x)
	case float64, bool:
		return x
	default:
		return command.Coerce(fmt.Sprint(x))
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// render is how a successful extraction is remembered in the session, so
// the model sees its own earlier answers in canonical form.
func render(cmds []command.Command) string {
	res := wireResult{Commands: make([]wireCommand, 0, len(cmds))}
	for _, c := range cmds {
		wc := wireCommand{
			Summary:     c.Summary,
			Action:      c.Action,
			MissingInfo: c.MissingInfo,
		}
		for _, k := range sortedKeys(c.Parameters) {
			wc.Parameters = append(wc.Parameters, wireParam{Key: k, Value: valueText(c.Parameters[k])})
		}
		res.Commands = append(res.Commands, wc)
	}

	data, err := json.Marshal(res)
	if err != nil {
		return `{"commands":[]}`
	}
	return string(data)
}

func valueText(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
