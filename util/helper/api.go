package helper_util

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page size bounds for list endpoints. The cap keeps a decision-log
// query from dragging the whole index through one response.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// GetPaginationParams reads the limit/offset query parameters,
// applying the surface-wide defaults and cap.
func GetPaginationParams(c *gin.Context) (int, int, error) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		return 0, 0, fmt.Errorf("invalid limit %q", c.Query("limit"))
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("invalid offset %q", c.Query("offset"))
	}

	return limit, offset, nil
}
