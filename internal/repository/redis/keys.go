package redis

import "fmt"

const ns = "staygo:v1"

func KeyUserBooking(userID int64) string {
	return fmt.Sprintf("%s:user:%d:booking", ns, userID)
}

func KeyUserBookingGen(userID int64) string {
	return fmt.Sprintf("%s:user:%d:booking:gen", ns, userID)
}

func KeyIdemBooking(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:booking:%d:%s", ns, userID, idemKey)
}

func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelRoomsChanged() string {
	return ns + ":rooms:changed"
}
