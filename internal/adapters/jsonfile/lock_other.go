//go:build !unix

package jsonfile

import "context"

// fileLock is a no-op where flock is unavailable; only writers inside one
// process are serialized there.
type fileLock struct{}

func openLock(string) (*fileLock, error) { return &fileLock{}, nil }

func (*fileLock) acquire(ctx context.Context) error { return ctx.Err() }

func (*fileLock) release() error { return nil }

func (*fileLock) close() error { return nil }
