package recorder

import "LiquidSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSnapshot(_ *model.AccountSnapshot) error { return nil }
func (n *NoopRecorder) RecordCycle(_ *CycleEvent) error               { return nil }
func (n *NoopRecorder) Close() error                                  { return nil }
