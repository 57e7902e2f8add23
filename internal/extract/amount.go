package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// nonZeroAmount parses a payload value into a decimal amount.
// ok is false for missing, empty, non-numeric and zero values.
func nonZeroAmount(v any) (amount decimal.Decimal, ok bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case float64:
		amount = decimal.NewFromFloat(t)
		return amount, !amount.IsZero()
	default:
		return decimal.Zero, false
	}
	if s == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.IsZero() {
		return decimal.Zero, false
	}
	return amount, true
}

// looseString decodes a JSON string, number or boolean as text; null becomes "".
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case json.Number:
		*s = looseString(t.String())
	case bool:
		*s = looseString(fmt.Sprint(t))
	default:
		return fmt.Errorf("expected a scalar, got %s", string(b))
	}
	return nil
}

// textOf renders a scalar payload value as text.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
