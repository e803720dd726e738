package voice

import "errors"

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrTransport        = errors.New("live transport failure")
	ErrAudioPathway     = errors.New("audio pathway unavailable")
	ErrAlreadyActive    = errors.New("connection already active")
	ErrSuperseded       = errors.New("connect attempt superseded")
	ErrClosed           = errors.New("controller closed")
)

const (
	MessageMicrophone = "Could not access microphone."
	MessageConnection = "Connection error. Please try again."
)
