package ratelimit

// SocketLimiter throttles inbound messages on one signaling socket.
//
// Messages are limited per second with a one second burst. When a byte rate
// is configured, payload bytes are limited the same way.
type SocketLimiter struct {
	messages *TokenBucket
	bytes    *TokenBucket
}

// NewSocketLimiter builds a limiter. bytesPerSecond <= 0 disables the byte
// budget.
func NewSocketLimiter(clock Clock, messagesPerSecond, bytesPerSecond int) *SocketLimiter {
	l := &SocketLimiter{
		messages: NewTokenBucket(clock, int64(messagesPerSecond), int64(messagesPerSecond)),
	}
	if bytesPerSecond > 0 {
		l.bytes = NewTokenBucket(clock, int64(bytesPerSecond), int64(bytesPerSecond))
	}
	return l
}

// AllowMessage reports whether a message of size bytes may be processed.
func (l *SocketLimiter) AllowMessage(size int) bool {
	if !l.messages.Allow(1) {
		return false
	}
	if l.bytes != nil && !l.bytes.Allow(int64(size)) {
		return false
	}
	return true
}
