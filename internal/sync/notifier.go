package sync

import "github.com/charmbracelet/log"

// Notifier surfaces sync outcomes to the user.
//
// The engine reports through it instead of returning errors from background
// pushes; messages are transient and never block.
type Notifier interface {
	Notify(message string)
	NotifyError(message string)
}

// NopNotifier discards all messages.
type NopNotifier struct{}

func (NopNotifier) Notify(string)      {}
func (NopNotifier) NotifyError(string) {}

// LogNotifier reports sync outcomes through a [log.Logger].
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(message string) {
	n.Logger.Info(message)
}

func (n LogNotifier) NotifyError(message string) {
	n.Logger.Error(message)
}
