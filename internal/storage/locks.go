package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	LockFile   = "file"
	LockFolder = "folder"
)

// Lock is the persistent record of a file or folder lock.
type Lock struct {
	ID       string
	Path     string
	Kind     string
	LockedAt time.Time
}

// PutLock records a lock for path. Locking an already locked path keeps the
// original record and returns it.
func (d *DB) PutLock(path, kind string) (Lock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.NewString()
	if _, err := d.db.Exec(`
		INSERT INTO _locks (id, path, kind, locked_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path, kind) DO NOTHING`,
		id, path, kind,
	); err != nil {
		return Lock{}, err
	}

	var l Lock
	var lockedAt string
	err := d.db.QueryRow(`
		SELECT id, path, kind, locked_at FROM _locks
		WHERE path = ? AND kind = ?`, path, kind).
		Scan(&l.ID, &l.Path, &l.Kind, &lockedAt)
	if err != nil {
		return Lock{}, err
	}
	l.LockedAt = parseTimestamp(lockedAt)
	return l, nil
}

// DeleteLock removes the lock for path. Removing a missing lock is not an error.
func (d *DB) DeleteLock(path, kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`DELETE FROM _locks WHERE path = ? AND kind = ?`, path, kind)
	return err
}

// ListLocks returns every lock, oldest first.
func (d *DB) ListLocks() ([]Lock, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT id, path, kind, locked_at FROM _locks
		ORDER BY locked_at, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []Lock
	for rows.Next() {
		var l Lock
		var lockedAt string
		if err := rows.Scan(&l.ID, &l.Path, &l.Kind, &lockedAt); err != nil {
			return nil, err
		}
		l.LockedAt = parseTimestamp(lockedAt)
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
