package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/config"
	"github.com/AnshRaj112/driveshare-backend/internal/database"
	"github.com/AnshRaj112/driveshare-backend/internal/handlers"
	"github.com/AnshRaj112/driveshare-backend/internal/middleware"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories/audit"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories/memstore"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories/mongostore"
	"github.com/AnshRaj112/driveshare-backend/internal/routes"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
	"github.com/AnshRaj112/driveshare-backend/pkg/utils"
)

// store is the set of repositories a backend provides.
type store interface {
	Conversations() repositories.Conversations
	Messages() repositories.Messages
	Profiles() repositories.Profiles
	Listings() repositories.Listings
	Bookings() repositories.Bookings
	CarMakes() repositories.CarMakes
}

func main() {
	// Load env
	envErr := godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg)
	if envErr != nil {
		log.Info().Msg("No .env file found")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("AUTH_JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st     store
		feed   services.ChangeFeed
		events repositories.BookingEvents
		rdb    *redis.Client
	)

	switch cfg.StorageBackend {
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		st = memstore.New()
		feed = services.NewLocalFeed()
		events = &memstore.BookingEvents{}

	default:
		log.Info().Str("uri", database.MaskURI(cfg.MongoURI)).Msg("Connecting to MongoDB...")
		client, db, err := database.Connect(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer database.Disconnect(client)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			log.Warn().Err(err).Msg("failed to ensure MongoDB indexes")
		} else {
			log.Info().Msg("MongoDB indexes ensured")
		}
		st = mongostore.New(db)

		log.Info().Msg("Connecting to Redis...")
		rdb, err = database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		redisFeed := services.NewRedisFeed(rdb, log)
		redisFeed.Start(ctx)
		feed = redisFeed

		log.Info().Msg("Connecting to PostgreSQL...")
		pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pg.Close()
		events = audit.NewPostgresRepository(pg)
	}

	cache := services.NewCache(rdb)
	profiles := services.NewProfileService(st.Profiles(), cache, log)

	// Check encryption key (warn if not set, but don't fail)
	if cfg.EncryptionKey == "" {
		log.Warn().Msg("ENCRYPTION_KEY not set; phone numbers are stored unencrypted. Generate one with: openssl rand -base64 32")
	} else if phones, err := utils.NewFieldCipher(cfg.EncryptionKey); err != nil {
		log.Fatal().Err(err).Msg("ENCRYPTION_KEY is invalid")
	} else {
		profiles.EncryptPhones(phones)
		log.Info().Msg("Encryption key configured")
	}

	api := &handlers.API{
		Profiles:      profiles,
		Conversations: services.NewConversationDirectory(st.Conversations(), profiles, feed, log),
		Messages:      services.NewMessageChannel(st.Conversations(), st.Messages(), feed, log),
		Watcher:       services.NewWatcher(st.Conversations(), st.Messages(), profiles, feed, log),
		Unread:        services.NewUnreadAggregator(st.Conversations(), st.Messages(), feed, log),
		Typing:        services.NewTypingTracker(rdb, st.Conversations(), feed, log),
		Listings:      services.NewListingService(st.Listings(), st.Bookings(), st.CarMakes(), profiles, cache, log),
		Bookings:      services.NewBookingService(st.Bookings(), st.Listings(), events, profiles, log),
		Log:           log.With().Str("component", "http").Logger(),
	}

	// Initialize Cloudinary service
	if cfg.CloudinaryEnabled() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Cloudinary; file uploads will not be available")
		} else {
			api.Uploader = cld
			log.Info().Msg("Cloudinary service initialized")
		}
	} else {
		log.Warn().Msg("Cloudinary credentials not found. File uploads will not be available")
	}

	global := middleware.NewGlobalLimiter()
	reads := middleware.NewReadLimiter()
	for _, l := range append(reads.Limiters(), global) {
		go l.Run(ctx)
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		API:      api,
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Global:   global,
		Reads:    reads,
		Writes:   middleware.NewWindowLimiter(rdb, middleware.WriteRateLimitMaxRequests, middleware.WriteRateLimitWindow, log),
		Log:      log,
	})
	if cfg.IsProduction() {
		log.Info().Msg("Production security enabled (security headers, host check, per-IP rate limiting)")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageBackend).Msg("DriveShare backend running")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

// newLogger writes JSON in production and a console format elsewhere.
func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}
