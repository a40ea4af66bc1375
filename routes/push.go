package routes

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"garantia-push/config"
	"garantia-push/database"
	"garantia-push/models"
)

// RegisterPushRoutes mounts the push endpoints on an authenticated group.
func RegisterPushRoutes(rg *gin.RouterGroup) {
	rg.GET("/vapid-public", GetVAPIDPublicKey)
	rg.POST("/subscribe", Subscribe)
	rg.POST("/notify", Notify)
}

// GetVAPIDPublicKey returns the server's VAPID public key. A null key means
// push is not configured; clients skip registration silently.
func GetVAPIDPublicKey(c *gin.Context) {
	key := config.AppConfig.Push.VAPIDPublicKey
	if key == "" {
		c.JSON(http.StatusOK, models.VAPIDKeyResponse{PublicKey: nil})
		return
	}
	c.JSON(http.StatusOK, models.VAPIDKeyResponse{PublicKey: &key})
}

// Subscribe stores a push subscription, upserting by endpoint: re-subscribing
// from the same client overwrites the stored keys instead of creating a
// duplicate row.
func Subscribe(c *gin.Context) {
	userID := c.GetUint("user_id")

	var request models.SubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Unscoped: a subscription pruned by Notify leaves a soft-deleted row that
	// still occupies the unique endpoint index; re-subscribing must restore it
	// instead of failing the insert.
	var existing models.PushSubscription
	err := database.DB.Unscoped().Where("endpoint = ?", request.Endpoint).First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		subscription := models.PushSubscription{
			UserID:   userID,
			Endpoint: request.Endpoint,
			P256dh:   request.Keys.P256dh,
			Auth:     request.Keys.Auth,
		}
		if err := database.DB.Create(&subscription).Error; err != nil {
			log.Printf("❌ Error creating push subscription: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register subscription"})
			return
		}
		log.Printf("✅ Push subscription registered for user %d", userID)
	} else if err != nil {
		log.Printf("❌ Error checking existing subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	} else {
		existing.UserID = userID
		existing.P256dh = request.Keys.P256dh
		existing.Auth = request.Keys.Auth
		existing.DeletedAt = gorm.DeletedAt{}
		if err := database.DB.Unscoped().Save(&existing).Error; err != nil {
			log.Printf("❌ Error updating push subscription: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
			return
		}
		log.Printf("✅ Push subscription updated for user %d", userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Subscription registered successfully",
	})
}

// NotifyRequest addresses a payload to every subscription of a user.
type NotifyRequest struct {
	UserID  uint                       `json:"user_id" binding:"required"`
	Payload models.NotificationPayload `json:"payload"`
}

// Notify sends a web push message to all of a user's subscriptions. Gone or
// unknown endpoints are pruned so key rotation and expired channels clean
// themselves up over time.
func Notify(c *gin.Context) {
	cfg := config.AppConfig.Push
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push is not configured"})
		return
	}

	var request NotifyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var subscriptions []models.PushSubscription
	if err := database.DB.Where("user_id = ?", request.UserID).Find(&subscriptions).Error; err != nil {
		log.Printf("❌ Error fetching subscriptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	payloadBytes, err := json.Marshal(request.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	sent := 0
	for _, subscription := range subscriptions {
		s := &webpush.Subscription{
			Endpoint: subscription.Endpoint,
			Keys: webpush.Keys{
				P256dh: subscription.P256dh,
				Auth:   subscription.Auth,
			},
		}

		resp, err := webpush.SendNotification(payloadBytes, s, &webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             cfg.TTLSeconds,
		})
		if err != nil {
			log.Printf("❌ Failed to send push to %s: %v", subscription.Endpoint, err)
			continue
		}

		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			log.Printf("🧹 Removing stale subscription %d (status %d)", subscription.ID, resp.StatusCode)
			database.DB.Delete(&subscription)
		} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			sent++
		} else {
			body, _ := io.ReadAll(resp.Body)
			log.Printf("⚠️ Unexpected push status %d for %s: %s", resp.StatusCode, subscription.Endpoint, string(body))
		}
		resp.Body.Close()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"sent":    sent,
		"total":   len(subscriptions),
	})
}
