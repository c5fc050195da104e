package domain

import "errors"

var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrAlreadyBroadcasting = errors.New("stream already has a live broadcaster")
	ErrConnNotFound        = errors.New("connection not found")
	ErrSendQueueFull       = errors.New("connection send queue full")
)
