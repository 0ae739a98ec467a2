package students

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *Service {
	return &Service{emailDomain: "cambridge.edu.in"}
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T: %v", err, err)
	assert.Equal(t, code, api.Code)
}

func TestValidateNew_NormalizesUSN(t *testing.T) {
	svc := testService()

	m, err := svc.validateNew(CreateStudentRequest{
		StudentID: "1CD23IS001",
		Name:      "Asha Rao",
		Email:     "Asha.Rao@cambridge.edu.in",
	})
	require.NoError(t, err)
	assert.Equal(t, "1cd23is001", m.StudentID)
	assert.Equal(t, "asha.rao@cambridge.edu.in", m.Email)
	// 学科はUSNから導出される
	require.True(t, m.DeptID.Valid)
	assert.Equal(t, "is", m.DeptID.String)
}

func TestValidateNew_PrefixlessUSN(t *testing.T) {
	svc := testService()

	m, err := svc.validateNew(CreateStudentRequest{
		StudentID: "23CS-045",
		Name:      "Rahul",
		Email:     "rahul@cambridge.edu.in",
	})
	require.NoError(t, err)
	assert.Equal(t, "1cd23cs045", m.StudentID)
	assert.Equal(t, "cs", m.DeptID.String)
}

func TestValidateNew_ExplicitDeptWins(t *testing.T) {
	svc := testService()

	m, err := svc.validateNew(CreateStudentRequest{
		StudentID: "1cd23is001",
		Name:      "Asha",
		Email:     "asha@cambridge.edu.in",
		DeptID:    "DS",
	})
	require.NoError(t, err)
	assert.Equal(t, "ds", m.DeptID.String)
}

func TestValidateNew_Rejections(t *testing.T) {
	svc := testService()

	tests := []struct {
		name string
		req  CreateStudentRequest
	}{
		{
			name: "invalid usn",
			req:  CreateStudentRequest{StudentID: "23xx145", Name: "X", Email: "x@cambridge.edu.in"},
		},
		{
			name: "empty name",
			req:  CreateStudentRequest{StudentID: "1cd23is001", Name: "   ", Email: "x@cambridge.edu.in"},
		},
		{
			name: "wrong email domain",
			req:  CreateStudentRequest{StudentID: "1cd23is001", Name: "X", Email: "x@gmail.com"},
		},
		{
			name: "not an email",
			req:  CreateStudentRequest{StudentID: "1cd23is001", Name: "X", Email: "not-an-email"},
		},
		{
			name: "unknown dept",
			req:  CreateStudentRequest{StudentID: "1cd23is001", Name: "X", Email: "x@cambridge.edu.in", DeptID: "zz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.validateNew(tt.req)
			assertCode(t, err, CodeInvalidArgument)
		})
	}
}

func TestValidateNew_YearBounds(t *testing.T) {
	svc := testService()

	bad := int64(9)
	_, err := svc.validateNew(CreateStudentRequest{
		StudentID: "1cd23is001", Name: "X", Email: "x@cambridge.edu.in", Year: &bad,
	})
	assertCode(t, err, CodeInvalidArgument)

	ok := int64(3)
	m, err := svc.validateNew(CreateStudentRequest{
		StudentID: "1cd23is001", Name: "X", Email: "x@cambridge.edu.in", Year: &ok,
	})
	require.NoError(t, err)
	require.True(t, m.Year.Valid)
	assert.Equal(t, int64(3), m.Year.Int64)
}

func TestNormalizeEmail_NoDomainRestriction(t *testing.T) {
	svc := &Service{} // ドメイン未設定なら任意のメールを許可
	email, err := svc.normalizeEmail("Someone@Example.org ")
	require.NoError(t, err)
	assert.Equal(t, "someone@example.org", email)
}
