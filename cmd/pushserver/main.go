package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"garantia-push/config"
	"garantia-push/database"
	"garantia-push/middleware"
	"garantia-push/relay"
	"garantia-push/routes"
)

func main() {
	genVAPID := flag.Bool("gen-vapid", false, "generate a VAPID key pair and exit")
	flag.Parse()

	if *genVAPID {
		generateVAPIDKeys()
		return
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	config.Load()

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Set Gin mode
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Garantía push server is running",
			"time":    time.Now().UTC(),
		})
	})

	// Push delivery relay: agents connect here, application servers POST
	// messages to the per-channel endpoints it hands out.
	pushRelay := relay.New(config.AppConfig.Server.BaseURL)
	router.GET("/push/ws", pushRelay.HandleWS)
	router.POST("/push/:channelID", pushRelay.HandlePush)

	// API routes
	api := router.Group("/api")
	{
		// Development-only token mint; the real application issues its own
		// session tokens.
		api.POST("/auth/dev-token", routes.DevToken)

		pushRoutes := api.Group("/push")
		pushRoutes.Use(middleware.AuthMiddleware())
		routes.RegisterPushRoutes(pushRoutes)
	}

	port := config.AppConfig.Server.Port
	log.Printf("Server starting on port %s", port)
	if err := router.Run("0.0.0.0:" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// generateVAPIDKeys prints a fresh key pair in .env form. Restart the server
// after configuring the variables; rotating the keys invalidates every stored
// subscription until clients re-register.
func generateVAPIDKeys() {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		log.Fatal("Failed to generate VAPID keys:", err)
	}
	fmt.Println("Add these lines to your .env file (or export the variables):")
	fmt.Println()
	fmt.Println("VAPID_PUBLIC_KEY=" + publicKey)
	fmt.Println("VAPID_PRIVATE_KEY=" + privateKey)
	fmt.Println()
	fmt.Println("Restart the server after configuring the variables.")
}
