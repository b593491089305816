package logger

import "context"

// noopLogger discards everything. With and WithContext return the receiver.
type noopLogger struct{}

func (n *noopLogger) Debug(string, ...any) {}
func (n *noopLogger) Info(string, ...any) {}
func (n *noopLogger) Warn(string, ...any) {}
func (n *noopLogger) Error(string, ...any) {}
func (n *noopLogger) With(...any) Logger { return n }
func (n *noopLogger) WithContext(context.Context) Logger { return n }
