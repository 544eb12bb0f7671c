package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every API call answers with. The HTTP status is
// always 200; Code carries the outcome.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageData wraps one page of a listing.
type PageData struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

const (
	CodeOK           = http.StatusOK
	CodeBadRequest   = http.StatusBadRequest
	CodeUnauthorized = http.StatusUnauthorized
	CodeForbidden    = http.StatusForbidden
	CodeNotFound     = http.StatusNotFound
	CodeConflict     = http.StatusConflict
	CodeInternal     = http.StatusInternalServerError
)

func write(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: code, Message: message, Data: data})
}

func Success(c *gin.Context, data interface{}) {
	write(c, CodeOK, "success", data)
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	write(c, CodeOK, message, data)
}

// Error answers with a failure code and no data.
func Error(c *gin.Context, code int, message string) {
	write(c, code, message, nil)
}

// Abort writes an error and stops the handler chain; middleware uses it.
func Abort(c *gin.Context, code int, message string) {
	Error(c, code, message)
	c.Abort()
}

func BadRequest(c *gin.Context, message string)   { Error(c, CodeBadRequest, message) }
func Unauthorized(c *gin.Context, message string) { Error(c, CodeUnauthorized, message) }
func Forbidden(c *gin.Context, message string)    { Error(c, CodeForbidden, message) }
func NotFound(c *gin.Context, message string)     { Error(c, CodeNotFound, message) }
func Conflict(c *gin.Context, message string)     { Error(c, CodeConflict, message) }

func InternalServerError(c *gin.Context, message string) {
	Error(c, CodeInternal, message)
}

// Page answers with one page of list. A nil list is sent as [] so clients
// can always range over it.
func Page(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	if list == nil {
		list = []struct{}{}
	}
	Success(c, PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}
