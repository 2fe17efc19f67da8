package httpgin_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"

	"github.com/kirinyoku/staygo/internal/domain"
	"github.com/kirinyoku/staygo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/staygo/internal/repository/redis"
	"github.com/kirinyoku/staygo/internal/service"
	httpgin "github.com/kirinyoku/staygo/internal/transport/http/gin"
)

var testSecret = []byte("test-secret")

type RouterSuite struct {
	suite.Suite

	store  *memory.Store
	router *gin.Engine
	logger *slog.Logger
	idem   *redisrepo.IdempotencyStore

	hotelType domain.TicketType
	hotel     domain.Hotel
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *RouterSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	s.store = memory.New()
	s.idem = nil
	svcs := service.NewServices(s.store, nil, nil, s.logger, service.Config{})
	s.router = httpgin.NewRouter(svcs, httpgin.Config{JWTSecret: testSecret}, s.logger)

	s.hotelType = s.store.AddTicketType("in person + hotel", 600, false, true)
	s.hotel = s.store.AddHotel("Driven Resort", "resort.png")
}

// withRedis rebuilds the router with a Redis backed cache, idempotency
// store and, for perMinute > 0, rate limiter.
func (s *RouterSuite) withRedis(perMinute int) {
	mr := miniredis.RunT(s.T())
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s.T().Cleanup(func() { _ = rdb.Close() })

	s.idem = redisrepo.NewIdempotencyStore(rdb, time.Hour)

	var limiter *redisrepo.SlidingWindowLimiter
	if perMinute > 0 {
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimit("booking"), perMinute, time.Minute)
	}

	svcs := service.NewServices(s.store, redisrepo.New(rdb), nil, s.logger, service.Config{})
	s.router = httpgin.NewRouter(svcs, httpgin.Config{
		JWTSecret:   testSecret,
		Idempotency: s.idem,
		Limiter:     limiter,
	}, s.logger)
}

func token(userID int64, secret []byte, ttl time.Duration) string {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	signed, err := t.SignedString(secret)
	if err != nil {
		panic(err)
	}

	return signed
}

func (s *RouterSuite) do(method, path string, userID int64, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		req.Header.Set("Authorization", "Bearer "+token(userID, testSecret, time.Hour))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w
}

func (s *RouterSuite) eligibleUser(userID int64) {
	enr := s.store.AddEnrollment(userID, "user")
	tk := s.store.AddTicket(enr.ID, s.hotelType.ID, domain.TicketPaid)
	s.store.AddPayment(tk.ID)
}

func roomBody(roomID int64) string {
	return `{"roomId":` + strconv.FormatInt(roomID, 10) + `}`
}

func (s *RouterSuite) TestHealthz() {
	w := s.do(http.MethodGet, "/healthz", 0, "")

	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok", gjson.Get(w.Body.String(), "status").String())
}

func (s *RouterSuite) TestUnauthorized() {
	for _, tc := range []struct {
		name   string
		method string
		path   string
		header string
	}{
		{"no token", http.MethodGet, "/booking", ""},
		{"garbage token", http.MethodGet, "/booking", "Bearer not-a-jwt"},
		{"wrong scheme", http.MethodPost, "/booking", "Basic " + token(1, testSecret, time.Hour)},
		{"wrong secret", http.MethodPost, "/booking", "Bearer " + token(1, []byte("other"), time.Hour)},
		{"expired", http.MethodPut, "/booking/1", "Bearer " + token(1, testSecret, -time.Minute)},
	} {
		s.Run(tc.name, func() {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(roomBody(1)))
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			s.Equal(http.StatusUnauthorized, w.Code)
		})
	}
}

func (s *RouterSuite) TestGetBooking() {
	w := s.do(http.MethodGet, "/booking", 1, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("user has no booking", gjson.Get(w.Body.String(), "error").String())

	room := s.store.AddRoom(s.hotel.ID, "101", 3)
	b := s.store.AddBooking(1, room.ID)

	w = s.do(http.MethodGet, "/booking", 1, "")
	s.Require().Equal(http.StatusOK, w.Code)

	body := w.Body.String()
	s.Equal(b.ID, gjson.Get(body, "id").Int())
	s.Equal(room.ID, gjson.Get(body, "Room.id").Int())
	s.Equal("101", gjson.Get(body, "Room.name").String())
	s.EqualValues(3, gjson.Get(body, "Room.capacity").Int())
	s.Equal(s.hotel.ID, gjson.Get(body, "Room.hotelId").Int())
	s.True(gjson.Get(body, "Room.createdAt").Exists())
	s.True(gjson.Get(body, "Room.updatedAt").Exists())

	etag := w.Header().Get("ETag")
	s.NotEmpty(etag)
	s.Equal("private, max-age=15", w.Header().Get("Cache-Control"))

	w = s.do(http.MethodGet, "/booking", 1, "", "If-None-Match", etag)
	s.Equal(http.StatusNotModified, w.Code)
	s.Empty(w.Body.String())
}

func (s *RouterSuite) TestCreateBookingBadRequest() {
	for name, body := range map[string]string{
		"no body":        "",
		"empty":          "{}",
		"null":           `{"roomId":null}`,
		"not integer":    `{"roomId":"abc"}`,
		"fraction":       `{"roomId":1.5}`,
		"integral float": `{"roomId":1.0}`,
	} {
		s.Run(name, func() {
			w := s.do(http.MethodPost, "/booking", 1, body)
			s.Equal(http.StatusBadRequest, w.Code)
		})
	}
}

func (s *RouterSuite) TestCreateBookingNonPositiveRoom() {
	for _, body := range []string{`{"roomId":0}`, `{"roomId":-1}`, `{"roomId":-42}`} {
		w := s.do(http.MethodPost, "/booking", 1, body)
		s.Equal(http.StatusForbidden, w.Code, body)
	}
}

func (s *RouterSuite) TestCreateBooking() {
	s.eligibleUser(1)
	s.eligibleUser(2)
	room := s.store.AddRoom(s.hotel.ID, "101", 1)

	w := s.do(http.MethodPost, "/booking", 1, roomBody(999999))
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/booking", 1, roomBody(room.ID))
	s.Require().Equal(http.StatusOK, w.Code)
	bookingID := gjson.Get(w.Body.String(), "bookingId").Int()
	s.Positive(bookingID)

	w = s.do(http.MethodGet, "/booking", 1, "")
	s.Equal(bookingID, gjson.Get(w.Body.String(), "id").Int())

	// already booked
	w = s.do(http.MethodPost, "/booking", 1, roomBody(room.ID))
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("user already has a booking", gjson.Get(w.Body.String(), "error").String())

	// room full
	w = s.do(http.MethodPost, "/booking", 2, roomBody(room.ID))
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("room is fully booked", gjson.Get(w.Body.String(), "error").String())
}

func (s *RouterSuite) TestCreateBookingIneligible() {
	room := s.store.AddRoom(s.hotel.ID, "101", 5)
	remote := s.store.AddTicketType("remote", 100, true, false)

	enr := s.store.AddEnrollment(2, "remote")
	tk := s.store.AddTicket(enr.ID, remote.ID, domain.TicketPaid)
	s.store.AddPayment(tk.ID)

	enr = s.store.AddEnrollment(3, "unpaid")
	s.store.AddTicket(enr.ID, s.hotelType.ID, domain.TicketReserved)

	s.store.AddEnrollment(4, "no ticket")

	for _, user := range []int64{1, 2, 3, 4} {
		w := s.do(http.MethodPost, "/booking", user, roomBody(room.ID))
		s.Equal(http.StatusForbidden, w.Code, "user %d", user)
	}
}

func (s *RouterSuite) TestUpdateBooking() {
	r1 := s.store.AddRoom(s.hotel.ID, "101", 1)
	r2 := s.store.AddRoom(s.hotel.ID, "102", 1)
	full := s.store.AddRoom(s.hotel.ID, "103", 1)
	s.store.AddBooking(9, full.ID)
	mine := s.store.AddBooking(1, r1.ID)
	theirs := s.store.AddBooking(2, r1.ID)

	path := "/booking/" + strconv.FormatInt(mine.ID, 10)

	w := s.do(http.MethodPut, path, 1, "")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/booking/abc", 1, roomBody(r2.ID))
	s.Equal(http.StatusBadRequest, w.Code)

	for _, p := range []string{"/booking/0", "/booking/-1"} {
		w = s.do(http.MethodPut, p, 1, roomBody(r2.ID))
		s.Equal(http.StatusForbidden, w.Code, p)
	}

	w = s.do(http.MethodPut, path, 1, `{"roomId":0}`)
	s.Equal(http.StatusForbidden, w.Code)

	// someone else's booking
	w = s.do(http.MethodPut, "/booking/"+strconv.FormatInt(theirs.ID, 10), 1, roomBody(r2.ID))
	s.Equal(http.StatusForbidden, w.Code)

	// user without a booking
	w = s.do(http.MethodPut, path, 3, roomBody(r2.ID))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, path, 1, roomBody(999999))
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, path, 1, roomBody(full.ID))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, path, 1, roomBody(r2.ID))
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(mine.ID, gjson.Get(w.Body.String(), "bookingId").Int())

	w = s.do(http.MethodGet, "/booking", 1, "")
	s.Equal(r2.ID, gjson.Get(w.Body.String(), "Room.id").Int())
}

func (s *RouterSuite) TestRequestID() {
	w := s.do(http.MethodGet, "/healthz", 0, "", "X-Request-ID", "abc-123")
	s.Equal("abc-123", w.Header().Get("X-Request-ID"))

	w = s.do(http.MethodGet, "/healthz", 0, "")
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestCreateBookingIgnoresUnknownFields() {
	s.eligibleUser(1)
	room := s.store.AddRoom(s.hotel.ID, "101", 1)

	w := s.do(http.MethodPost, "/booking", 1, `{"roomId":`+strconv.FormatInt(room.ID, 10)+`,"note":"late"}`)

	s.Equal(http.StatusOK, w.Code)
	s.Equal(1, s.store.CountBookings(room.ID))
}

func (s *RouterSuite) TestCreateBookingIdempotentReplay() {
	s.withRedis(0)
	s.eligibleUser(1)
	room := s.store.AddRoom(s.hotel.ID, "101", 5)

	w := s.do(http.MethodPost, "/booking", 1, roomBody(room.ID), "Idempotency-Key", "k1")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("k1", w.Header().Get("Idempotency-Key"))
	bookingID := gjson.Get(w.Body.String(), "bookingId").Int()
	s.Positive(bookingID)

	w = s.do(http.MethodPost, "/booking", 1, roomBody(room.ID), "Idempotency-Key", "k1")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("k1", w.Header().Get("Idempotency-Key"))
	s.Equal(bookingID, gjson.Get(w.Body.String(), "bookingId").Int())
	s.Equal(1, s.store.CountBookings(room.ID))

	// a new key runs the checks again
	w = s.do(http.MethodPost, "/booking", 1, roomBody(room.ID), "Idempotency-Key", "k2")
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *RouterSuite) TestCreateBookingIdempotencyKeyInProgress() {
	s.withRedis(0)
	s.eligibleUser(1)
	room := s.store.AddRoom(s.hotel.ID, "101", 5)

	locked, err := s.idem.AcquireLock(context.Background(), redisrepo.KeyIdemBooking(1, "k1"))
	s.Require().NoError(err)
	s.Require().True(locked)

	w := s.do(http.MethodPost, "/booking", 1, roomBody(room.ID), "Idempotency-Key", "k1")
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("1", w.Header().Get("Retry-After"))
	s.Equal("idempotency key in progress", gjson.Get(w.Body.String(), "error").String())
	s.Zero(s.store.CountBookings(room.ID))

	// keys are per user
	s.eligibleUser(2)
	w = s.do(http.MethodPost, "/booking", 2, roomBody(room.ID), "Idempotency-Key", "k1")
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestCreateBookingFailureReleasesIdempotencyKey() {
	s.withRedis(0)
	room := s.store.AddRoom(s.hotel.ID, "101", 5)

	w := s.do(http.MethodPost, "/booking", 1, roomBody(room.ID), "Idempotency-Key", "k1")
	s.Equal(http.StatusForbidden, w.Code)

	s.eligibleUser(1)

	w = s.do(http.MethodPost, "/booking", 1, roomBody(room.ID), "Idempotency-Key", "k1")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(1, s.store.CountBookings(room.ID))
}

func (s *RouterSuite) TestRateLimit() {
	s.withRedis(2)
	room := s.store.AddRoom(s.hotel.ID, "101", 5)

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, "/booking", 1, roomBody(room.ID))
		s.Equal(http.StatusForbidden, w.Code)
	}

	w := s.do(http.MethodPut, "/booking/1", 1, roomBody(room.ID))
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.Equal("rate limited", gjson.Get(w.Body.String(), "error").String())

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	s.Require().NoError(err)
	s.GreaterOrEqual(retryAfter, 1)
	s.LessOrEqual(retryAfter, 60)

	// reads are not limited
	w = s.do(http.MethodGet, "/booking", 1, "")
	s.Equal(http.StatusNotFound, w.Code)

	// other users have their own window
	w = s.do(http.MethodPost, "/booking", 2, roomBody(room.ID))
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *RouterSuite) TestGetBookingWithCacheFollowsUpdate() {
	s.withRedis(0)
	r1 := s.store.AddRoom(s.hotel.ID, "101", 1)
	r2 := s.store.AddRoom(s.hotel.ID, "102", 1)
	s.eligibleUser(1)

	w := s.do(http.MethodPost, "/booking", 1, roomBody(r1.ID))
	s.Require().Equal(http.StatusOK, w.Code)
	bookingID := gjson.Get(w.Body.String(), "bookingId").Int()

	w = s.do(http.MethodGet, "/booking", 1, "")
	s.Equal(r1.ID, gjson.Get(w.Body.String(), "Room.id").Int())

	w = s.do(http.MethodPut, "/booking/"+strconv.FormatInt(bookingID, 10), 1, roomBody(r2.ID))
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/booking", 1, "")
	s.Equal(r2.ID, gjson.Get(w.Body.String(), "Room.id").Int())
}
