package common

import "fmt"

var (
	ErrNotConnected     = fmt.Errorf("not connected to download manager")
	ErrMalformedMessage = fmt.Errorf("malformed message")
	ErrRetriesExhausted = fmt.Errorf("reconnect retries exhausted")
	ErrEmptyDownloadID  = fmt.Errorf("empty download id")
	ErrEmptyActionName  = fmt.Errorf("empty action name")
)
