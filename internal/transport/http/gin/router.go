package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/staygo/internal/repository/redis"
	"github.com/kirinyoku/staygo/internal/service"
	"github.com/kirinyoku/staygo/internal/service/booking"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Config struct {
	// JWTSecret signs the bearer tokens accepted on /booking.
	JWTSecret []byte
	// Idempotency and Limiter are optional.
	Idempotency *redisrepo.IdempotencyStore
	Limiter     *redisrepo.SlidingWindowLimiter
}

func NewRouter(
	svcs *service.Services,
	cfg Config,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	bookings := r.Group("/booking", AuthMiddleware(cfg.JWTSecret))
	{
		limit := RateLimitMiddleware(cfg.Limiter, "booking", logger)

		bookings.GET("", handleGetBooking(svcs))
		bookings.POST("", limit, handleCreateBooking(svcs, cfg.Idempotency))
		bookings.PUT("/:bookingId", limit, handleUpdateBooking(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary   Get the booking of the current user
// @Security  BearerAuth
// @Produce   json
// @Success   200  {object}  BookingResponse
// @Success   304  "not modified"
// @Failure   401  {object}  ErrorResponse
// @Failure   404  {object}  ErrorResponse
// @Router    /booking [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svcs.Booking.GetBooking(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		// per-user data, so private
		writeJSONWithCache(c, http.StatusOK, toBookingResponse(view), "private, max-age=15", true)
	}
}

// @Summary   Book a room (idempotent)
// @Security  BearerAuth
// @Accept    json
// @Produce   json
// @Param     Idempotency-Key  header  string          false  "replays the first response"
// @Param     req              body    BookingRequest  true   "room to book"
// @Success   200  {object}  BookingIDResponse
// @Failure   400  {object}  ErrorResponse
// @Failure   401  {object}  ErrorResponse
// @Failure   403  {object}  ErrorResponse  "already booked / room full / ticket not eligible"
// @Failure   404  {object}  ErrorResponse  "room not found"
// @Failure   409  {object}  ErrorResponse  "concurrent change / idempotency key in progress"
// @Failure   429  {object}  ErrorResponse  "rate limited"
// @Router    /booking [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, ok := bindRoomID(c)
		if !ok {
			return
		}

		uid := userID(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(uid, idemKey)

			if replayIdempotent(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdempotent(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		b, err := svcs.Booking.CreateBooking(c.Request.Context(), uid, roomID)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := BookingIDResponse{BookingID: b.ID}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary   Move the current user's booking to another room
// @Security  BearerAuth
// @Accept    json
// @Produce   json
// @Param     bookingId  path  int             true  "Booking ID"
// @Param     req        body  BookingRequest  true  "target room"
// @Success   200  {object}  BookingIDResponse
// @Failure   400  {object}  ErrorResponse
// @Failure   401  {object}  ErrorResponse
// @Failure   403  {object}  ErrorResponse  "not the user's booking / room full"
// @Failure   404  {object}  ErrorResponse  "room not found"
// @Failure   409  {object}  ErrorResponse
// @Failure   429  {object}  ErrorResponse
// @Router    /booking/{bookingId} [put]
func handleUpdateBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseInt64Param(c, "bookingId")
		if !ok {
			return
		}

		roomID, ok := bindRoomID(c)
		if !ok {
			return
		}

		if bookingID <= 0 {
			forbidden(c)
			return
		}

		b, err := svcs.Booking.UpdateBooking(c.Request.Context(), userID(c), bookingID, roomID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, BookingIDResponse{BookingID: b.ID})
	}
}

// --- Helpers ---

// bindRoomID reads the request body. A missing or malformed body is 400,
// a room id that is not positive is 403.
func bindRoomID(c *gin.Context) (int64, bool) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return 0, false
	}

	if *req.RoomID <= 0 {
		forbidden(c)
		return 0, false
	}

	return *req.RoomID, true
}

func replayIdempotent(
	c *gin.Context,
	idem *redisrepo.IdempotencyStore,
	key, idemKey string,
) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), key)
	if !ok {
		return false
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))

	return true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
}

func respondErr(c *gin.Context, err error) {
	cause := booking.Cause(err)

	switch {
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: message(cause)})
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: message(cause)})
	case errors.Is(err, booking.ErrConflict):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: message(cause)})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// message drops the kind prefix, "forbidden: room is fully booked" becomes
// "room is fully booked".
func message(cause error) string {
	if cause == nil {
		return "unknown error"
	}

	msg := cause.Error()
	if _, rest, ok := strings.Cut(msg, ": "); ok {
		return rest
	}

	return msg
}
