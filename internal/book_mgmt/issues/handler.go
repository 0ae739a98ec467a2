package issues

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/issues", h.ListIssues)
	r.GET("/issues/active", h.ListActive)
	r.GET("/issues/overdue", h.ListOverdue)
	r.GET("/issues/:key", h.GetIssue)
	r.POST("/issues", h.CreateIssue)
	r.POST("/issues/:key/return", h.ReturnIssue)
	r.POST("/issues/:key/renew", h.RenewIssue)
	r.DELETE("/issues/:key", h.DeleteIssue)
}

func (h *Handler) CreateIssue(c *gin.Context) {
	var req CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	// 司書IDはセッション優先。librarian としてログインしている場合のみ拾える。
	var sessionLibrarianID *int64
	if sess := auth.SessionFrom(c); sess != nil && sess.IsLibrarian() {
		if id, err := strconv.ParseInt(sess.UserID, 10, 64); err == nil {
			sessionLibrarianID = &id
		}
	}

	res, err := h.svc.CreateIssue(c.Request.Context(), req, sessionLibrarianID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetIssue(c *gin.Context) {
	res, err := h.svc.GetIssueByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListIssues(c *gin.Context) {
	f := IssueFilter{StudentID: c.Query("student_id")}
	if v := c.Query("book_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BookID = &id
		}
	}
	if v := c.Query("active"); v != "" {
		b := v == "true" || v == "1"
		f.Active = &b
	}

	items, total, err := h.svc.ListIssues(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) ListActive(c *gin.Context) {
	items, total, err := h.svc.ListActive(c.Request.Context(), c.Query("student_id"), pageFrom(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) ListOverdue(c *gin.Context) {
	asOf := time.Now()
	if v := c.Query("as_of"); v != "" {
		parsed, err := parseDateTime(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid as_of format, expected YYYY-MM-DD or RFC3339"))
			return
		}
		asOf = parsed
	}

	items, total, err := h.svc.ListOverdue(c.Request.Context(), asOf, pageFrom(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) ReturnIssue(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid issue_id"))
		return
	}

	var req ReturnRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
			return
		}
	}

	res, err := h.svc.ReturnIssue(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RenewIssue(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid issue_id"))
		return
	}
	res, err := h.svc.RenewIssue(c.Request.Context(), id)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteIssue(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid issue_id"))
		return
	}
	if err := h.svc.DeleteIssue(c.Request.Context(), id); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- helpers ----------

func pageFrom(c *gin.Context) Page {
	return Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var msg string
	var code Code = CodeInternal
	if api, ok := err.(*APIError); ok {
		code, msg = api.Code, api.Message
	} else {
		msg = err.Error()
	}
	return errorBody(code, msg)
}
