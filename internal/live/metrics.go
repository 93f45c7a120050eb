package live

import "time"

// Recorder is the metrics sink a LiveBracket/LiveRegistry reports
// through (spec §4.10). Declared at the consumer so package metrics
// can implement it without live importing metrics. Nil-safe: every
// call site guards on a nil Recorder.
type Recorder interface {
	SetSubscribers(tournamentID, bracketID uint64, n int)
	IncDropped(tournamentID, bracketID uint64)
	IncLagged(tournamentID, bracketID uint64)
	ObserveCommand(kind string, d time.Duration)
	ObserveStoreWrite(backend string, d time.Duration)
	IncStoreWriteFailure(backend string)
}
