//go:build !unix

package certstore

// fileLock is a no-op where flock is unavailable; concurrent writers are
// serialized by SQLite's own locking instead.
type fileLock struct{}

func lockFile(string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (*fileLock) unlock() error {
	return nil
}
