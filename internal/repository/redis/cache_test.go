package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisrepo "github.com/kirinyoku/staygo/internal/repository/redis"
)

type roomView struct {
	ID   int64
	Room string
}

func TestGetOrSetJSON_MissThenHit(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)

	calls := 0
	load := func(context.Context) (roomView, error) {
		calls++
		return roomView{ID: 1, Room: "101"}, nil
	}

	v, err := redisrepo.GetOrSetJSON(ctx, cache, "view", "view:gen", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, roomView{ID: 1, Room: "101"}, v)
	assert.True(t, mr.Exists("view"))
	assert.Equal(t, time.Minute, mr.TTL("view"))

	v, err = redisrepo.GetOrSetJSON(ctx, cache, "view", "view:gen", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, roomView{ID: 1, Room: "101"}, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrSetJSON_LoaderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)

	boom := errors.New("boom")
	_, err := redisrepo.GetOrSetJSON(ctx, cache, "view", "view:gen", time.Minute, func(context.Context) (roomView, error) {
		return roomView{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("view"))

	v, err := redisrepo.GetOrSetJSON(ctx, cache, "view", "view:gen", time.Minute, func(context.Context) (roomView, error) {
		return roomView{ID: 2}, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.ID)
}

func TestGetOrSetJSON_BumpDuringLoad(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)

	v, err := redisrepo.GetOrSetJSON(ctx, cache, "view", "view:gen", time.Minute, func(ctx context.Context) (roomView, error) {
		// a writer commits and invalidates while the old value is in flight
		require.NoError(t, cache.Bump(ctx, "view", "view:gen"))
		return roomView{ID: 1, Room: "old"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "old", v.Room)
	assert.False(t, mr.Exists("view"))

	v, err = redisrepo.GetOrSetJSON(ctx, cache, "view", "view:gen", time.Minute, func(context.Context) (roomView, error) {
		return roomView{ID: 1, Room: "new"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", v.Room)
	assert.True(t, mr.Exists("view"))
}

func TestBump(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)

	require.NoError(t, mr.Set("view", `{"ID":1}`))

	require.NoError(t, cache.Bump(ctx, "view", "view:gen"))
	require.NoError(t, cache.Bump(ctx, "view", "view:gen"))

	assert.False(t, mr.Exists("view"))
	gen, err := mr.Get("view:gen")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)
	assert.Equal(t, 24*time.Hour, mr.TTL("view:gen"))
}

func TestInvalidateBooking(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)

	require.NoError(t, mr.Set(redisrepo.KeyUserBooking(7), `{"ID":1}`))
	require.NoError(t, mr.Set(redisrepo.KeyUserBooking(8), `{"ID":2}`))

	require.NoError(t, cache.InvalidateBooking(ctx, 7))

	assert.False(t, mr.Exists(redisrepo.KeyUserBooking(7)))
	assert.True(t, mr.Exists(redisrepo.KeyUserBooking(8)))
	assert.True(t, mr.Exists(redisrepo.KeyUserBookingGen(7)))
}

func TestGetOrSetJSON_CachedValue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := redisrepo.New(db)

	mock.ExpectGet("view").SetVal(`{"ID":7,"Room":"201"}`)

	v, err := redisrepo.GetOrSetJSON(context.Background(), cache, "view", "view:gen", time.Minute, func(context.Context) (roomView, error) {
		t.Fatal("loader called on a hit")
		return roomView{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, roomView{ID: 7, Room: "201"}, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSON_RedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := redisrepo.New(db)

	down := errors.New("connection refused")
	mock.ExpectGet("view").SetErr(down)
	mock.ExpectGet("view:gen").SetErr(down)

	calls := 0
	v, err := redisrepo.GetOrSetJSON(context.Background(), cache, "view", "view:gen", time.Minute, func(context.Context) (roomView, error) {
		calls++
		return roomView{ID: 3, Room: "301"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, roomView{ID: 3, Room: "301"}, v)
	assert.Equal(t, 1, calls)
	// nothing is written without a known generation
	assert.NoError(t, mock.ExpectationsWereMet())
}
