package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/config"
	"github.com/AnshRaj112/driveshare-backend/internal/handlers"
	"github.com/AnshRaj112/driveshare-backend/internal/middleware"
)

// Deps is everything the router wires together.
type Deps struct {
	Config   *config.Config
	API      *handlers.API
	Verifier *auth.Verifier
	Global   *middleware.KeyedLimiter
	Reads    *middleware.ReadLimiter
	Writes   *middleware.WindowLimiter
	Log      zerolog.Logger
}

// NewRouter builds the middleware stack and registers every route.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CORS(d.Config.AllowedOrigins))

	// Production: SecurityHeaders → HostCheck → GlobalRateLimit
	if d.Config.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(d.Config.AllowedHost, d.Global) {
			r.Use(mw)
		}
	}

	// Health check (no auth)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Verifier, d.Log))
		r.Use(middleware.ReadRateLimit(d.Reads))
		r.Use(middleware.WriteRateLimit(d.Writes))
		SetupRoutes(r, d.API)
	})
	return r
}

// SetupRoutes registers the API. Public reads go first; the rest require a
// signed-in caller.
func SetupRoutes(r chi.Router, api *handlers.API) {
	// Public car and profile reads
	r.Get("/api/cars", api.SearchCars)
	r.Get("/api/cars/{id}", api.GetCar)
	r.Get("/api/users/{uid}/cars", api.ListUserCars)
	r.Get("/api/car-makes", api.ListCarMakes)
	r.Get("/api/profiles/{uid}", api.GetPublicProfile)
	r.Get("/api/profiles/by-username/{username}", api.GetProfileByUsername)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		// File upload routes
		r.Post("/api/upload", api.UploadPhoto)

		// Profile routes
		r.Get("/api/profile", api.GetMyProfile)
		r.Put("/api/profile", api.SaveMyProfile)
		r.Post("/api/profile/check-username", api.CheckUsername)

		// Chat routes
		r.Get("/api/conversations", api.ListConversations)
		r.Post("/api/conversations", api.StartConversation)
		r.Get("/api/conversations/{id}", api.GetConversation)
		r.Get("/api/conversations/{id}/messages", api.ListMessages)
		r.Post("/api/conversations/{id}/messages", api.SendMessage)
		r.Post("/api/conversations/{id}/read", api.MarkRead)
		r.Post("/api/conversations/{id}/typing", api.SetTyping)
		r.Get("/api/messages/unread-count", api.UnreadCount)

		// Car owner routes
		r.Post("/api/cars", api.CreateCar)
		r.Put("/api/cars/{id}", api.UpdateCar)
		r.Delete("/api/cars/{id}", api.DeleteCar)
		r.Put("/api/cars/{id}/status", api.SetCarStatus)

		// Booking routes
		r.Get("/api/bookings", api.ListBookings)
		r.Post("/api/bookings", api.CreateBooking)
		r.Get("/api/bookings/{id}", api.GetBooking)
		r.Put("/api/bookings/{id}/status", api.UpdateBookingStatus)
		r.Get("/api/bookings/{id}/history", api.BookingHistory)

		// Real-time routes
		r.Get("/ws/conversations", api.ConversationsSocket)
		r.Get("/ws/conversations/{id}", api.ConversationSocket)
		r.Get("/ws/unread", api.UnreadSocket)
	})
}
