package api

import "github.com/gin-gonic/gin"

// AbortWithError renders an error as a JSON response and aborts the request.
func AbortWithError(c *gin.Context, err error) {
	kind := KindOf(err)
	c.AbortWithStatusJSON(HTTPStatus(kind), gin.H{
		"code":    string(kind),
		"message": MessageOf(err),
	})
}
