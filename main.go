package main

import (
	"context"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/handler"
	"github.com/vidtube/backend/internal/service"
)

// @title vidtube auth API
// @version 1.0
// @description User authentication and session management backend.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	sessions, err := service.NewSessionService(pg, cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	router := gin.Default()
	router.Use(handler.CORSMiddleware(strings.Split(cfg.Server.AllowedOrigins, ","), true))

	router.GET("/ping", handler.Ping)
	router.GET("/", handler.Root)
	router.GET("/openapi.json", handler.OpenAPIDoc)

	authHandler := handler.NewAuthHandler(sessions)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	protected := router.Group("/api/v1/auth")
	protected.Use(handler.AuthMiddleware(sessions))
	{
		protected.POST("/logout", authHandler.Logout)
		protected.GET("/me", authHandler.Me)
		protected.POST("/change-password", authHandler.ChangePassword)
	}

	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
