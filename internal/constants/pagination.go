package constants

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Pagination Query Parameters
const (
	QueryParamPage   = "page"
	QueryParamLimit  = "limit"
	QueryParamSearch = "search"
)

// Default Pagination Values (as strings for query parsing)
const (
	DefaultPage   = "1"
	DefaultLimit  = "10"
	DefaultSearch = ""
)

// Pagination Limits
const (
	MinPage  = 1
	MinLimit = 1
	MaxLimit = 100
)

// PaginationParams holds parsed pagination values for list endpoints
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
	Search string
}

// ParsePaginationParams parses page/limit/search query parameters with bounds
func ParsePaginationParams(c *gin.Context) PaginationParams {
	pageStr := c.DefaultQuery(QueryParamPage, DefaultPage)
	limitStr := c.DefaultQuery(QueryParamLimit, DefaultLimit)

	page, _ := strconv.Atoi(pageStr)
	limit, _ := strconv.Atoi(limitStr)

	if page < MinPage {
		page = MinPage
	}
	if limit < MinLimit {
		limit = MinLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
		Search: c.DefaultQuery(QueryParamSearch, DefaultSearch),
	}
}
