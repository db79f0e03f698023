package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, ws *WorkspaceHandler, send *SendHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	api := e.Group("/api")
	api.GET("/state", ws.State)

	auth := api.Group("/auth")
	auth.POST("/login", ws.Login)
	auth.POST("/signup", ws.Signup)
	auth.POST("/logout", ws.Logout)

	api.POST("/collections", ws.CreateCollection)
	api.PUT("/collections/:id", ws.RenameCollection)
	api.DELETE("/collections/:id", ws.DeleteCollection)
	api.POST("/collections/:id/apis", ws.CreateAPI)

	api.POST("/apis", ws.SaveUnsavedAPI)
	api.GET("/apis/:id", ws.GetAPI)
	api.PUT("/apis/:id", ws.UpdateAPI)
	api.DELETE("/apis/:id", ws.DeleteAPI)
	api.PUT("/apis/:id/name", ws.RenameAPI)
	api.PUT("/apis/:id/collection", ws.MoveAPI)

	api.POST("/send", send.Send)
	api.DELETE("/send/:requestId", send.Cancel)
	api.POST("/build", send.Build)
}
