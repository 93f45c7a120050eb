//go:build windows

package main

import "go.uber.org/zap"

// raiseFileDescriptorLimit is a no-op on Windows, which has no rlimit concept.
func raiseFileDescriptorLimit(log *zap.Logger) {}
