package controllers

import (
	"github.com/gin-gonic/gin"
)

// withGuard prepends guard handlers without aliasing the caller's slice
func withGuard(guard []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(guard)+1)
	handlers = append(handlers, guard...)
	return append(handlers, handler)
}
