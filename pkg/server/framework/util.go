package framework

import (
	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/wallet-service/internal/util"
)

// GetParam is a utility to get a path parameter from context, nil if not found
func GetParam(c *gin.Context, param string) *string {
	got := c.Param(param)
	if got == "" {
		return nil
	}
	return &got
}

// GetQueryValue is a utility to get a parameter value from the query string, nil if not found
func GetQueryValue(c *gin.Context, param string) *string {
	got, ok := c.GetQuery(param)
	if !ok || got == "" {
		return nil
	}
	return &got
}

// GetBearerToken returns the wallet user's access token from the Authorization header
func GetBearerToken(c *gin.Context) (string, error) {
	return util.BearerToken(c.GetHeader("Authorization"))
}
