package websocket

import "errors"

// ErrQueueFull is returned by Publish when the hub cannot accept more events.
var ErrQueueFull = errors.New("websocket publish queue is full")
