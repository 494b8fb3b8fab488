package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/pointdeck/pointdeck/analytics"
	"github.com/pointdeck/pointdeck/config"
	"github.com/pointdeck/pointdeck/handlers"
	"github.com/pointdeck/pointdeck/session"
	"github.com/pointdeck/pointdeck/store"
)

func main() {
	// Optional .env for local development
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	counters, err := analytics.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open analytics database: %v", err)
	}
	defer counters.Close()

	roomStore := store.NewStore()
	sessions := session.NewManager(roomStore, counters)
	roomHandler := handlers.NewRoomHandler(sessions, roomStore, counters)

	// Set up periodic cleanup for empty rooms
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			count := sessions.CleanupEmptyRooms()
			log.Printf("Cleaned up %d empty rooms", count)
		}
	}()

	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API Routes
	api := router.Group("/api")
	{
		api.POST("/rooms", roomHandler.CreateRoom)
		api.GET("/stats", roomHandler.Stats)

		rooms := api.Group("/rooms/:code")
		{
			rooms.GET("", roomHandler.GetRoom)
			rooms.POST("/join", roomHandler.JoinRoom)
			rooms.GET("/leave", roomHandler.LeaveRoom)
			rooms.POST("/vote", roomHandler.SubmitVote)
			rooms.POST("/reveal", roomHandler.RevealVotes)
			rooms.POST("/reset", roomHandler.ResetRound)
			rooms.POST("/role", roomHandler.ToggleRole)
			rooms.POST("/kick", roomHandler.KickParticipant)
			rooms.POST("/scale", roomHandler.ChangeScale)
			rooms.POST("/ticket", roomHandler.SetTicket)
			rooms.POST("/ticket/queue", roomHandler.QueueTicket)
			rooms.POST("/settings", roomHandler.UpdateSettings)
			rooms.POST("/timer/start", roomHandler.StartTimer)
			rooms.POST("/timer/stop", roomHandler.StopTimer)
			rooms.POST("/heartbeat", roomHandler.Heartbeat)

			// WebSocket endpoint for real-time updates
			rooms.GET("/events", roomHandler.StreamEvents)
		}
	}

	addr := ":" + strconv.Itoa(cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown did not finish cleanly: %v", err)
	}
}
