package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseValue checks a raw string against the field's declared type and
// range, returning the canonical form used for equality and compilation.
func (f Field) ParseValue(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("field %s: value must not be empty", f.Key)
	}

	switch f.Type {
	case FieldTypeString:
		return trimmed, nil
	case FieldTypeNumber:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return "", fmt.Errorf("field %s: %q is not a number", f.Key, raw)
		}
		if err := f.checkRange(n); err != nil {
			return "", err
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case FieldTypeDate:
		t, err := time.Parse(dateLayout, trimmed)
		if err != nil {
			return "", fmt.Errorf("field %s: %q is not a date (expected YYYY-MM-DD)", f.Key, raw)
		}
		return t.Format(dateLayout), nil
	case FieldTypeCurrency:
		n, err := parseCurrency(trimmed)
		if err != nil {
			return "", fmt.Errorf("field %s: %q is not a currency amount", f.Key, raw)
		}
		if err := f.checkRange(n); err != nil {
			return "", err
		}
		return strconv.FormatFloat(n, 'f', 2, 64), nil
	default:
		return "", fmt.Errorf("field %s: unsupported field type %s", f.Key, f.Type)
	}
}

// Equal reports whether two raw values are the same under the field's
// type-aware comparison. Unparseable values fall back to exact string
// comparison so a malformed current snapshot never masks a real change.
func (f Field) Equal(a, b string) bool {
	ca, errA := f.ParseValue(a)
	cb, errB := f.ParseValue(b)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return ca == cb
}

func (f Field) checkRange(n float64) error {
	if f.Min != nil && n < *f.Min {
		return fmt.Errorf("field %s: %v is below the minimum of %v", f.Key, n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Errorf("field %s: %v is above the maximum of %v", f.Key, n, *f.Max)
	}
	return nil
}

// parseCurrency accepts plain decimals plus common formatted amounts
// ("Rs. 120,000", "PKR 5000", "$1,250.50").
func parseCurrency(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	for _, prefix := range []string{"Rs.", "Rs", "PKR", "USD", "$"} {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseFloat(cleaned, 64)
}
