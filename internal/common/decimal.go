package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalField parses a raw JSON value into a decimal. Numbers and numeric
// strings are accepted; a missing or null field yields zero.
func DecimalField(raw json.RawMessage, name string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("%s must be a number", name)
		}
		trimmed = strings.TrimSpace(s)
		if trimmed == "" {
			return decimal.Zero, nil
		}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a number", name)
	}
	return d, nil
}
