package students

import "time"

type CreateStudentRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Contact   string `json:"contact,omitempty"`
	Year      *int64 `json:"year,omitempty"`
	// 未指定ならUSNから導出する
	DeptID string `json:"dept_id,omitempty"`
}

type UpdateStudentRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Contact *string `json:"contact,omitempty"`
	Year    *int64  `json:"year,omitempty"`
	DeptID  *string `json:"dept_id,omitempty"`
}

type StudentResponse struct {
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Contact   *string   `json:"contact,omitempty"`
	Year      *int64    `json:"year,omitempty"`
	DeptID    *string   `json:"dept_id,omitempty"`
	DeptName  *string   `json:"dept_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type DepartmentResponse struct {
	DeptID   string `json:"dept_id"`
	DeptName string `json:"dept_name"`
}
