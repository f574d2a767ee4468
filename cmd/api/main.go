package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"marketchat/internal/adapter/api"
	"marketchat/internal/adapter/api/handler"
	apimiddleware "marketchat/internal/adapter/api/middleware"
	"marketchat/internal/adapter/api/router"
	"marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	domainrepo "marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/broker"
	"marketchat/internal/infrastructure/client"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/internal/infrastructure/websocket"
	"marketchat/internal/usecase"
	"marketchat/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	if err := db.AutoMigrate(&entity.Room{}, &entity.Participant{}); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	var opts []option.ClientOption
	if credentialsPath := os.Getenv("FIRESTORE_CREDENTIALS_PATH"); credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	firestoreClient, err := firestore.NewClient(ctx, cfg.FirestoreProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	location, err := time.LoadLocation(cfg.ChatTimezone)
	if err != nil {
		log.Fatalf("Failed to load chat timezone %q: %v", cfg.ChatTimezone, err)
	}

	roomRepo := repository.NewGormRoomRepository(db)
	participantRepo := repository.NewGormParticipantRepository(db)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)

	var cache domainrepo.CounterCache
	if cfg.CacheEnabled {
		cache = repository.NewRedisCounterCache(rdb)
	} else {
		cache = repository.NewMemoryCounterCache()
	}

	publisher := broker.NewRedisPublisher(rdb)

	productClient := client.NewProductClient(cfg.ProductServiceURL)
	userClient := client.NewUserClient(cfg.UserServiceURL)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	subscriber := broker.NewSubscriber(rdb, wsManager)
	subscriber.Start(ctx)

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(ctx)

	roomUseCase := usecase.NewRoomUseCase(roomRepo, participantRepo, messageRepo, productClient, userClient, rateLimiter)
	chatUseCase := usecase.NewChatUseCase(roomRepo, participantRepo, messageRepo, cache, publisher, rateLimiter, location)
	wsManager.SetChatService(chatUseCase)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(cfg.JWTSecret, cfg.TrustedGateway)

	roomHandler := handler.NewRoomHandler(roomUseCase)
	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)
	healthHandler := handler.NewHealthHandler()

	router.Setup(e, authMiddleware, roomHandler, chatHandler, wsHandler, healthHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
