package reports

import "sort"

// PopularBooks counts issues per book and returns the top entries.
// Ties keep first-seen order, which is issue order for store-fed input,
// so ranking stays stable across calls.
func PopularBooks(refs []IssueBookRef, limit int) []PopularBook {
	if limit <= 0 {
		limit = 10
	}

	idx := make(map[int64]int, len(refs))
	var out []PopularBook
	for _, r := range refs {
		if i, ok := idx[r.BookID]; ok {
			out[i].IssueCount++
			continue
		}
		idx[r.BookID] = len(out)
		out = append(out, PopularBook{BookID: r.BookID, Title: r.Title, IssueCount: 1})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssueCount > out[j].IssueCount
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CountByDepartment tallies students per department, ordered by count
// descending then dept_id for deterministic output.
func CountByDepartment(refs []DeptRef) []DepartmentCount {
	idx := make(map[string]int, len(refs))
	var out []DepartmentCount
	for _, r := range refs {
		if i, ok := idx[r.DeptID]; ok {
			out[i].StudentCount++
			continue
		}
		idx[r.DeptID] = len(out)
		out = append(out, DepartmentCount{DeptID: r.DeptID, DeptName: r.DeptName, StudentCount: 1})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StudentCount != out[j].StudentCount {
			return out[i].StudentCount > out[j].StudentCount
		}
		return out[i].DeptID < out[j].DeptID
	})
	return out
}
