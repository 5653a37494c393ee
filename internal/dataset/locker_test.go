package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// chanLocker is an in-memory Locker.
type chanLocker chan struct{}

func newChanLocker() chanLocker {
	return make(chanLocker, 1)
}

func (c chanLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case c <- struct{}{}:
		return func() { <-c }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type guardRecorder struct {
	mu    sync.Mutex
	calls int
	errs  int
}

func (g *guardRecorder) ObserveGuard(_ time.Duration, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err != nil {
		g.errs++
	}
}

func TestFileLocker(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	path := filepath.Join(t.TempDir(), "data.csv.lock")
	a := NewFileLocker(path)
	b := NewFileLocker(path)

	unlock, err := a.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if _, err := os.Stat(a.Path()); err != nil {
		t.Errorf("lock artifact missing: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock() error = %v, want deadline exceeded", err)
	}

	acquired := make(chan func())
	go func() {
		u, err := b.Lock(context.Background())
		if err != nil {
			t.Errorf("Lock() after release failed: %v", err)
			close(acquired)
			return
		}
		acquired <- u
	}()
	select {
	case <-acquired:
		t.Fatal("second locker acquired a held lock")
	case <-time.After(30 * time.Millisecond):
	}
	unlock()
	select {
	case u := <-acquired:
		if u != nil {
			u()
		}
	case <-time.After(time.Second):
		t.Fatal("second locker never acquired the released lock")
	}
}

func TestStoreLockTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	content := "id,first_name,last_name\n1,Ross,Geller\n"
	path := writeFile(t, content)
	locker := NewFileLocker(LockPath(path))
	obs := &guardRecorder{}
	s := NewStore(path, locker)
	s.LockTimeout = 50 * time.Millisecond
	s.Observer = obs

	unlock, err := locker.Lock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	called := false
	err = s.Update(context.Background(), func(d *Dataset) error {
		called = true
		d.Records = nil
		return nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Update() error = %v, want ErrLockTimeout", err)
	}
	if called {
		t.Error("callback ran without the guard")
	}
	if got, _ := os.ReadFile(path); string(got) != content {
		t.Errorf("file changed: %q", got)
	}
	if err := s.View(context.Background(), func(*Dataset) error { return nil }); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("View() error = %v, want ErrLockTimeout", err)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.calls != 2 || obs.errs != 2 {
		t.Errorf("observer saw %d calls, %d errors; want 2, 2", obs.calls, obs.errs)
	}
}

func TestStoreCallerCancel(t *testing.T) {
	path := writeFile(t, "id,first_name,last_name\n1,Ross,Geller\n")
	locker := newChanLocker()
	s := NewStore(path, locker)
	unlock, _ := locker.Lock(context.Background())
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.View(ctx, func(*Dataset) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("View() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrLockTimeout) {
		t.Error("caller cancellation reported as lock timeout")
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	const n = 20
	content := "id,first_name,last_name,count\n"
	for i := range n {
		content += fmt.Sprintf("%d,First%d,Last%d,0\n", i, i, i)
	}
	path := writeFile(t, content)

	// Each goroutine gets its own Store and FileLocker on the same path, like
	// separate request handlers would.
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewStore(path, nil)
			errs <- s.Update(context.Background(), func(d *Dataset) error {
				r, ok := d.Get(fmt.Sprint(i))
				if !ok {
					return fmt.Errorf("record %d missing", i)
				}
				r["count"] = "1"
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Update() failed: %v", err)
		}
	}

	d, err := NewStore(path, nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != n {
		t.Fatalf("got %d records, want %d", d.Len(), n)
	}
	for _, r := range d.Records {
		if r["count"] != "1" {
			t.Errorf("record %s lost its update", r.ID())
		}
	}
}

func TestStoreInjectedLocker(t *testing.T) {
	path := writeFile(t, "id,first_name,last_name\n1,Ross,Geller\n")
	s := NewStore(path, newChanLocker())
	for range 3 {
		err := s.Update(context.Background(), func(d *Dataset) error {
			d.Records[0]["last_name"] += "!"
			return nil
		})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
	}
	if _, err := os.Stat(LockPath(path)); !os.IsNotExist(err) {
		t.Errorf("injected locker should not create %s", LockPath(path))
	}
	d, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Records[0]["last_name"]; got != "Geller!!!" {
		t.Errorf("last_name = %q, want %q", got, "Geller!!!")
	}
}
