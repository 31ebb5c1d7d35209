package redis

import "fmt"

const ns = "venuebook:v1"

func KeyVenueAvailability(venueID int64) string {
	return fmt.Sprintf("%s:venue:%d:availability", ns, venueID)
}

func KeyIdemBooking(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%d:%s", ns, userID, idemKey)
}

// KeyRateLimitPrefix is the prefix of limiter keys; the limiter appends
// scope and subject.
func KeyRateLimitPrefix() string {
	return ns + ":rl"
}

func ChannelBookingEvents() string {
	return ns + ":bookings:events"
}
