// Package studentid normalizes and validates college USNs
// (e.g. "1CD23IS145" -> "1cd23is145").
package studentid

import (
	"regexp"
	"strings"
)

const Prefix = "1cd"

// Department は学科コードのマスタ
type Department struct {
	Code string
	Name string
}

// 学科コードは固定の8種。students.departments テーブルのシードにも使う。
var Departments = []Department{
	{Code: "IS", Name: "Information Science and Engineering"},
	{Code: "CS", Name: "Computer Science and Engineering"},
	{Code: "ME", Name: "Mechanical Engineering"},
	{Code: "CV", Name: "Civil Engineering"},
	{Code: "DS", Name: "Data Science"},
	{Code: "IT", Name: "Internet of Things"},
	{Code: "EE", Name: "Electrical and Electronics Engineering"},
	{Code: "EC", Name: "Electronics and Communication Engineering"},
}

var canonicalRe = regexp.MustCompile(`^1cd\d{2}(is|cs|me|cv|ds|it|ee|ec)\d{3}$`)

// IsDeptCode reports whether code (case-insensitive) is a known department code.
func IsDeptCode(code string) bool {
	u := strings.ToUpper(code)
	for _, d := range Departments {
		if d.Code == u {
			return true
		}
	}
	return false
}

// DeptName returns the display name for a department code, or "" if unknown.
func DeptName(code string) string {
	u := strings.ToUpper(code)
	for _, d := range Departments {
		if d.Code == u {
			return d.Name
		}
	}
	return ""
}

// Normalize converts free-form USN input into the canonical
// 1cd<yy><dept><roll> form. Missing components are left empty rather than
// rejected; callers that need a hard check use Validate.
func Normalize(input string) string {
	raw := strings.ToLower(strings.TrimSpace(input))
	s := stripNonAlnum(raw)
	s = strings.TrimPrefix(s, Prefix)

	yy := digitsOnly(sliceMax(s, 0, 2))
	rest := ""
	if len(s) > 2 {
		rest = s[2:]
	}
	dept := sliceMax(rest, 0, 2)
	roll := ""
	if len(rest) > 2 {
		roll = digitsOnly(rest[2:])
	}

	yy = padTrunc(yy, 2)
	if !IsDeptCode(dept) {
		dept = ""
	}
	roll = padTrunc(roll, 3)

	return Prefix + yy + strings.ToLower(dept) + roll
}

// Validate normalizes then checks the full canonical pattern.
// Empty input is always invalid.
func Validate(input string) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}
	return canonicalRe.MatchString(Normalize(input))
}

// ---------- helpers ----------

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sliceMax(s string, from, to int) string {
	if len(s) < to {
		to = len(s)
	}
	if from >= to {
		return ""
	}
	return s[from:to]
}

// 左ゼロ埋めして width 桁に切り詰める。空文字もゼロ埋めする。
func padTrunc(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s[:width]
}
