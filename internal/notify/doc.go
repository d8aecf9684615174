package notify

// Package notify pushes job changes out of the process. Both the websocket
// Hub and the RedisPublisher are store observers: they are called on the
// goroutine that changed the job and never block it.
