package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValueNumber(t *testing.T) {
	field := Field{Key: "ranking", Type: FieldTypeNumber, Min: fptr(1), Max: fptr(1000)}

	got, err := field.ParseValue(" 42 ")
	require.NoError(t, err)
	require.Equal(t, "42", got)

	got, err = field.ParseValue("3.50")
	require.NoError(t, err)
	require.Equal(t, "3.5", got)

	_, err = field.ParseValue("not-a-number")
	require.Error(t, err)

	_, err = field.ParseValue("0")
	require.Error(t, err)

	_, err = field.ParseValue("1001")
	require.Error(t, err)
}

func TestParseValueCurrency(t *testing.T) {
	field := Field{Key: "tuition_fee", Type: FieldTypeCurrency, Min: fptr(0)}

	cases := map[string]string{
		"120000":      "120000.00",
		"Rs. 120,000": "120000.00",
		"PKR 5000":    "5000.00",
		"$1,250.50":   "1250.50",
	}
	for raw, want := range cases {
		got, err := field.ParseValue(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := field.ParseValue("Rs.")
	require.Error(t, err)
	_, err = field.ParseValue("-10")
	require.Error(t, err)
}

func TestParseValueDate(t *testing.T) {
	field := Field{Key: "due_date", Type: FieldTypeDate}

	got, err := field.ParseValue("2026-03-01")
	require.NoError(t, err)
	require.Equal(t, "2026-03-01", got)

	_, err = field.ParseValue("01/03/2026")
	require.Error(t, err)
	_, err = field.ParseValue("2026-02-30")
	require.Error(t, err)
}

func TestParseValueEmpty(t *testing.T) {
	field := Field{Key: "name", Type: FieldTypeString}
	_, err := field.ParseValue("   ")
	require.Error(t, err)
}

func TestEqualTypeAware(t *testing.T) {
	currency := Field{Key: "amount", Type: FieldTypeCurrency}
	require.True(t, currency.Equal("Rs. 120,000", "120000"))
	require.False(t, currency.Equal("120000", "125000"))

	number := Field{Key: "year", Type: FieldTypeNumber}
	require.True(t, number.Equal("2025", "2025.0"))

	// Unparseable values compare as trimmed strings.
	require.True(t, number.Equal(" abc ", "abc"))
	require.False(t, number.Equal("abc", "def"))
}

func TestRegistryLookup(t *testing.T) {
	r := Default()

	for _, entityType := range []string{"institution", "financial_aid", "qualifying_exam", "career", "deadline", "program", "merit_archive"} {
		_, err := r.Entity(entityType)
		require.NoError(t, err, entityType)
	}

	_, err := r.Entity("dormitory")
	require.Error(t, err)

	inst, err := r.Entity("institution")
	require.NoError(t, err)
	fee, err := inst.Field("tuition_fee")
	require.NoError(t, err)
	require.Equal(t, SensitivityHigh, fee.Sensitivity)

	_, err = inst.Field("mascot")
	require.Error(t, err)
}

func TestRegistryFieldsSorted(t *testing.T) {
	r := Default()
	inst, err := r.Entity("institution")
	require.NoError(t, err)

	fields := inst.Fields()
	require.NotEmpty(t, fields)
	for i := 1; i < len(fields); i++ {
		require.Less(t, fields[i-1].Key, fields[i].Key)
	}
}
