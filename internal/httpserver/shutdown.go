package httpserver

import "time"

// ShutdownTimeout bounds the wait for in-flight requests and analysis runs on exit.
var ShutdownTimeout = 30 * time.Second
