package main

import (
	"context"
	"log"
	"os"

	"plainspeak-backend/handlers"
	"plainspeak-backend/repository"
	"plainspeak-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from project root (relative to cmd/server/)
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	// Initialize Gemini gateway. A missing API key fails here, at
	// startup, never per request.
	geminiService, err := service.NewGeminiService(
		context.Background(),
		os.Getenv("GEMINI_API_KEY"),
		os.Getenv("GEMINI_MODEL"),
	)
	if err != nil {
		log.Fatal("Failed to initialize Gemini:", err)
	}
	defer geminiService.Close()
	log.Println("Gemini client initialized")

	// Initialize repository and services
	documentRepo := repository.NewDocumentRepository()
	documentService := service.NewDocumentService(
		service.WithDocumentRepository(documentRepo),
		service.WithAnalyzer(geminiService),
	)

	// Initialize handlers
	documentHandler := handlers.NewDocumentHandler(documentService)

	// Setup Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Document endpoints
	r.POST("/upload", documentHandler.UploadDocument)
	r.GET("/document/:id", documentHandler.GetDocument)
	r.POST("/analyze", documentHandler.AnalyzeDocument)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
