package action

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/djlord-it/bizflow/internal/domain"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render substitutes {{field}} placeholders in tmpl with values from the
// event payload. eventType and entityId are always available. Unknown
// fields render as the empty string.
func Render(tmpl string, ev domain.Event) string {
	data := TemplateData(ev)
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := data[key]
		if !ok {
			return ""
		}
		return format(v)
	})
}

// TemplateData flattens an event into the values templates can reference.
func TemplateData(ev domain.Event) map[string]any {
	data := make(map[string]any, len(ev.Payload)+2)
	for k, v := range ev.Payload {
		data[k] = v
	}
	data["eventType"] = string(ev.Type)
	if ev.EntityID != nil {
		data[domain.PayloadKeyEntityID] = *ev.EntityID
	}
	return data
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
