package models

import "fmt"

// Warning is a non-fatal observation made while converting a package
type Warning struct {
	Stage   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Stage, w.Message)
}

// Warnf builds a Warning with a formatted message.
func Warnf(stage, format string, args ...interface{}) Warning {
	return Warning{Stage: stage, Message: fmt.Sprintf(format, args...)}
}
