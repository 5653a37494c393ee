package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLockTimeout is the default bound on access guard acquisition.
const DefaultLockTimeout = 5 * time.Second

// GuardObserver is notified after every guard acquisition attempt.
type GuardObserver interface {
	ObserveGuard(wait time.Duration, err error)
}

// Store loads and saves a Dataset against a single CSV file.
type Store struct {
	path   string
	locker Locker

	// LockTimeout bounds guard acquisition in View and Update. Zero means
	// DefaultLockTimeout.
	LockTimeout time.Duration
	// NewID generates identifiers for blank ids. Defaults to random UUIDs.
	NewID func() string
	// Observer, if set, receives guard wait times.
	Observer GuardObserver
}

// NewStore returns a Store for the file at path, guarded by locker. When
// locker is nil, a FileLocker on LockPath(path) is used.
func NewStore(path string, locker Locker) *Store {
	if locker == nil {
		locker = NewFileLocker(LockPath(path))
	}
	return &Store{
		path:   path,
		locker: locker,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// View loads the dataset under the guard and passes it to fn. Changes made by
// fn are discarded.
func (s *Store) View(ctx context.Context, fn func(*Dataset) error) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d, err := s.Load()
	if err != nil {
		return err
	}
	return fn(d)
}

// Update loads the dataset under the guard, passes it to fn and saves the
// result if fn succeeds. The guard is held for the whole cycle.
func (s *Store) Update(ctx context.Context, fn func(*Dataset) error) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	return s.Save(d)
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	unlock, err := s.locker.Lock(lctx)
	if s.Observer != nil {
		s.Observer.ObserveGuard(time.Since(start), err)
	}
	if err == nil {
		return unlock, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s on %s", ErrLockTimeout, timeout, s.path)
	}
	// The lock artifact lives next to the data file, so a missing directory
	// means a missing data file.
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileNotFound, s.path, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrIO, err)
}

// Load reads and normalizes the dataset. It does not take the guard.
func (s *Store) Load() (*Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, s.path)
		}
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrIO, s.path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	d, err := Parse(f, s.newID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return d, nil
}

// Save atomically replaces the backing file with d. It does not take the
// guard.
func (s *Store) Save(d *Dataset) error {
	f, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrIO, err)
	}
	tmp := f.Name()
	if err := Write(f, d); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to write %s: %w", ErrIO, tmp, err), f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to sync %s: %w", ErrIO, tmp, err), f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to close %s: %w", ErrIO, tmp, err), os.Remove(tmp))
	}
	if err := os.Chmod(tmp, 0o644); err != nil { //nolint:gosec // G302: data file is meant to be world readable
		return errors.Join(fmt.Errorf("%w: failed to chmod %s: %w", ErrIO, tmp, err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to rename %s: %w", ErrIO, tmp, err), os.Remove(tmp))
	}
	return nil
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Parse reads a CSV table and normalizes it. newID generates replacement
// identifiers.
func Parse(r io.Reader, newID func() string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header row", ErrSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	var records []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchema, err)
		}
		if len(fields) > len(columns) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrSchema, line, len(fields), len(columns))
		}
		rec := make(Record, len(columns)+1)
		for i, c := range columns {
			if i < len(fields) {
				rec[c] = fields[i]
			} else {
				rec[c] = ""
			}
		}
		records = append(records, rec)
	}
	if !slices.Contains(columns, ColumnID) {
		columns = append([]string{ColumnID}, columns...)
		for _, rec := range records {
			rec[ColumnID] = ""
		}
	}
	d := &Dataset{Columns: columns, Records: records}
	d.normalize(newID)
	return d, nil
}

func parseHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("%w: column %d has an empty name", ErrSchema, i+1)
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchema, h)
		}
		seen[h] = struct{}{}
		columns[i] = h
	}
	for _, required := range []string{ColumnFirstName, ColumnLastName} {
		if _, ok := seen[required]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", ErrSchema, required)
		}
	}
	return columns, nil
}

// normalize assigns ids to blank rows and drops rows repeating an earlier id.
func (d *Dataset) normalize(newID func() string) {
	taken := make(map[string]struct{}, len(d.Records))
	for _, r := range d.Records {
		if id := r.ID(); strings.TrimSpace(id) != "" {
			taken[id] = struct{}{}
		}
	}
	seen := make(map[string]struct{}, len(d.Records))
	kept := d.Records[:0]
	for _, r := range d.Records {
		id := r.ID()
		if strings.TrimSpace(id) == "" {
			for {
				id = newID()
				_, t := taken[id]
				_, s := seen[id]
				if !t && !s {
					break
				}
			}
			r[ColumnID] = id
		} else if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, r)
	}
	clear(d.Records[len(kept):])
	d.Records = kept
}

// Write serializes d as CSV, header first, in column order.
func Write(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns); err != nil {
		return err
	}
	row := make([]string, len(d.Columns))
	for _, r := range d.Records {
		for i, c := range d.Columns {
			row[i] = r[c]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
