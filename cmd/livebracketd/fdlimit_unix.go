//go:build !windows

package main

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// raiseFileDescriptorLimit raises the soft RLIMIT_NOFILE to the hard
// ceiling, since a busy bracket server holds one socket per subscriber.
func raiseFileDescriptorLimit(log *zap.Logger) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Warn("could not read file descriptor limit", zap.Error(err))
		return
	}
	target := rlimit.Max
	if rlimit.Cur >= target {
		return
	}
	rlimit.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Warn("could not raise file descriptor limit", zap.Error(err))
		return
	}
	log.Info("raised file descriptor soft limit", zap.Uint64("cur", rlimit.Cur))
}
