package studentid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "1cd23is145", "1cd23is145"},
		{"uppercase with prefix", "1CD23IS145", "1cd23is145"},
		{"separators stripped", "1cd-23-IS-145", "1cd23is145"},
		{"no prefix", "23is145", "1cd23is145"},
		{"roll padded", "23is7", "1cd23is007"},
		{"roll truncated", "23is1234", "1cd23is123"},
		{"unknown dept dropped", "23xx145", "1cd23145"},
		{"empty input", "", "1cd00000"},
		{"whitespace only", "   ", "1cd00000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"1cd23is145", "1CD21CS001", "22ec999", "1cd20me042"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		"1cd23is145",
		"1CD23IS145",
		"23cs001",
		"1cd-21-ec-042",
	}
	for _, in := range valid {
		assert.True(t, Validate(in), "expected valid: %q", in)
	}

	invalid := []string{
		"",
		"   ",
		"1cd23xx145", // unknown department
		"hello",
	}
	for _, in := range invalid {
		assert.False(t, Validate(in), "expected invalid: %q", in)
	}
}

// validate(normalize(x)) holds for anything already matching the canonical pattern
func TestValidateAfterNormalizeRoundTrip(t *testing.T) {
	canonical := []string{"1cd23is145", "1cd00cs000", "1cd99ec999"}
	for _, id := range canonical {
		assert.True(t, Validate(Normalize(id)))
	}
}

func TestDeptHelpers(t *testing.T) {
	assert.True(t, IsDeptCode("is"))
	assert.True(t, IsDeptCode("IS"))
	assert.False(t, IsDeptCode("xy"))
	assert.Equal(t, "Computer Science and Engineering", DeptName("cs"))
	assert.Equal(t, "", DeptName("zz"))
	assert.Len(t, Departments, 8)
}
