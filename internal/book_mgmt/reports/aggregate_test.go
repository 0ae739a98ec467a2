package reports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopularBooks(t *testing.T) {
	refs := []IssueBookRef{
		{BookID: 1, Title: "Book A"},
		{BookID: 2, Title: "Book B"},
		{BookID: 1, Title: "Book A"},
		{BookID: 3, Title: "Book C"},
		{BookID: 2, Title: "Book B"},
		{BookID: 1, Title: "Book A"},
	}

	got := PopularBooks(refs, 10)
	assert.Equal(t, []PopularBook{
		{BookID: 1, Title: "Book A", IssueCount: 3},
		{BookID: 2, Title: "Book B", IssueCount: 2},
		{BookID: 3, Title: "Book C", IssueCount: 1},
	}, got)
}

// 同数の場合は先に貸し出された本が先に並ぶ。
func TestPopularBooks_StableTies(t *testing.T) {
	refs := []IssueBookRef{
		{BookID: 5, Title: "Seen First"},
		{BookID: 3, Title: "Seen Second"},
		{BookID: 5, Title: "Seen First"},
		{BookID: 3, Title: "Seen Second"},
	}

	got := PopularBooks(refs, 10)
	assert.Equal(t, []PopularBook{
		{BookID: 5, Title: "Seen First", IssueCount: 2},
		{BookID: 3, Title: "Seen Second", IssueCount: 2},
	}, got)
}

func TestPopularBooks_Limit(t *testing.T) {
	refs := []IssueBookRef{
		{BookID: 1, Title: "A"},
		{BookID: 2, Title: "B"},
		{BookID: 3, Title: "C"},
	}

	got := PopularBooks(refs, 2)
	assert.Len(t, got, 2)

	// limit 0 は既定値（10件）扱い
	got = PopularBooks(refs, 0)
	assert.Len(t, got, 3)
}

func TestPopularBooks_Empty(t *testing.T) {
	assert.Empty(t, PopularBooks(nil, 10))
}

func TestCountByDepartment(t *testing.T) {
	refs := []DeptRef{
		{DeptID: "is", DeptName: "Information Science"},
		{DeptID: "cs", DeptName: "Computer Science"},
		{DeptID: "cs", DeptName: "Computer Science"},
		{DeptID: "is", DeptName: "Information Science"},
		{DeptID: "cs", DeptName: "Computer Science"},
	}

	got := CountByDepartment(refs)
	assert.Equal(t, []DepartmentCount{
		{DeptID: "cs", DeptName: "Computer Science", StudentCount: 3},
		{DeptID: "is", DeptName: "Information Science", StudentCount: 2},
	}, got)
}

// 同数学科は dept_id 昇順で決定的に並ぶ。
func TestCountByDepartment_TieOrder(t *testing.T) {
	refs := []DeptRef{
		{DeptID: "me", DeptName: "Mechanical Engineering"},
		{DeptID: "cv", DeptName: "Civil Engineering"},
	}

	got := CountByDepartment(refs)
	assert.Equal(t, []DepartmentCount{
		{DeptID: "cv", DeptName: "Civil Engineering", StudentCount: 1},
		{DeptID: "me", DeptName: "Mechanical Engineering", StudentCount: 1},
	}, got)
}
