package settlement

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// OutcomeKind tags a parsed aggregator response
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is the interpretation of one aggregator response body
type Outcome struct {
	Kind    OutcomeKind
	Balance *decimal.Decimal
	Message string
}

// Succeeded reports whether the aggregator accepted the call
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// responseStrategy interprets a body, or returns false when it does not apply
type responseStrategy func(body []byte, doc map[string]any) (Outcome, bool)

// strategies run in order; the first that applies wins
var strategies = []responseStrategy{
	parseResultEnvelope,
	parseErrorFields,
	parseFreeText,
}

var failureKeywords = []string{
	"error",
	"fail",
	"invalid",
	"insufficient",
	"denied",
	"not found",
	"not exist",
	"unauthorized",
	"forbidden",
}

// ParseResponse interprets an aggregator response body. Aggregators answer
// with a RESULT/DATA envelope, a plain JSON error object, or bare text.
func ParseResponse(body []byte) Outcome {
	body = bytes.TrimSpace(body)

	var doc map[string]any
	if len(body) > 0 && body[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			doc = nil
		}
	}

	for _, s := range strategies {
		if out, ok := s(body, doc); ok {
			return out
		}
	}
	return Outcome{Kind: OutcomeFailure, Message: "empty aggregator response"}
}

// parseResultEnvelope handles {"RESULT": bool, "DATA": ...}
func parseResultEnvelope(_ []byte, doc map[string]any) (Outcome, bool) {
	raw, ok := lookup(doc, "RESULT")
	if !ok {
		return Outcome{}, false
	}
	data, _ := lookup(doc, "DATA")

	if !truthy(raw) {
		msg := messageFrom(doc)
		if msg == "" {
			if s, ok := data.(string); ok {
				msg = s
			}
		}
		if msg == "" {
			msg = "aggregator returned RESULT=false"
		}
		return Outcome{Kind: OutcomeFailure, Message: msg}, true
	}

	out := Outcome{Kind: OutcomeSuccess, Message: messageFrom(doc)}
	switch d := data.(type) {
	case map[string]any:
		for _, k := range []string{"balance", "BALANCE", "amount"} {
			if v, ok := d[k]; ok {
				out.Balance = toDecimal(v)
				break
			}
		}
	default:
		out.Balance = toDecimal(d)
	}
	return out, true
}

// parseErrorFields handles JSON bodies that carry an error description
func parseErrorFields(_ []byte, doc map[string]any) (Outcome, bool) {
	if doc == nil {
		return Outcome{}, false
	}
	for _, k := range []string{"error", "errorMessage", "err_msg"} {
		if v, ok := doc[k]; ok && v != nil && v != false {
			if s := toString(v); s != "" {
				return Outcome{Kind: OutcomeFailure, Message: s}, true
			}
		}
	}
	if code, ok := doc["code"]; ok {
		if d := toDecimal(code); d != nil && !d.IsZero() {
			msg := toString(doc["message"])
			if msg == "" {
				msg = "aggregator error code " + d.String()
			}
			return Outcome{Kind: OutcomeFailure, Message: msg}, true
		}
	}
	// any other JSON object is an acknowledgement
	out := Outcome{Kind: OutcomeSuccess, Message: toString(doc["message"])}
	if v, ok := doc["balance"]; ok {
		out.Balance = toDecimal(v)
	}
	return out, true
}

// parseFreeText scans non-JSON bodies for failure keywords
func parseFreeText(body []byte, _ map[string]any) (Outcome, bool) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return Outcome{}, false
	}
	lower := strings.ToLower(text)
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return Outcome{Kind: OutcomeFailure, Message: text}, true
		}
	}
	return Outcome{Kind: OutcomeSuccess, Message: text}, true
}

func lookup(doc map[string]any, key string) (any, bool) {
	if doc == nil {
		return nil, false
	}
	if v, ok := doc[key]; ok {
		return v, true
	}
	for k, v := range doc {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func messageFrom(doc map[string]any) string {
	for _, k := range []string{"MESSAGE", "message", "msg", "error", "errorMessage", "err_msg"} {
		if v, ok := doc[k]; ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "ok", "success":
			return true
		}
		return false
	case json.Number:
		return t.String() != "0"
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func toDecimal(v any) *decimal.Decimal {
	var (
		d   decimal.Decimal
		err error
	)
	switch t := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		d = decimal.NewFromFloat(t)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}
