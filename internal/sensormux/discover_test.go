package sensormux

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.bug.st/serial/enumerator"
)

func fakeLister(ports ...*enumerator.PortDetails) PortLister {
	return func() ([]*enumerator.PortDetails, error) { return ports, nil }
}

func TestResolveByProductPrefix(t *testing.T) {
	list := fakeLister(
		&enumerator.PortDetails{Name: "/dev/ttyUSB0", Product: "USB-Serial Adapter"},
		&enumerator.PortDetails{Name: "/dev/ttyACM1", Product: "NANO33_L rev2"},
	)

	path, err := Resolve(list, "NANO33_L", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/dev/ttyACM1" {
		t.Errorf("path = %q, want /dev/ttyACM1", path)
	}
}

func TestResolveBySerialNumber(t *testing.T) {
	list := fakeLister(
		&enumerator.PortDetails{Name: "/dev/ttyACM0", Product: "other", SerialNumber: "ABC123"},
	)

	path, err := Resolve(list, "NANO33_R", "abc123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/dev/ttyACM0" {
		t.Errorf("path = %q, want /dev/ttyACM0", path)
	}
}

func TestResolveByPortPath(t *testing.T) {
	list := fakeLister(
		&enumerator.PortDetails{Name: "/dev/ttyACM2"},
	)

	path, err := Resolve(list, "", "/dev/ttyACM2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/dev/ttyACM2" {
		t.Errorf("path = %q, want /dev/ttyACM2", path)
	}
}

func TestResolveNotFound(t *testing.T) {
	path, err := Resolve(fakeLister(), "NANO33_L", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
}

func TestResolveEmptyNameDoesNotMatchEverything(t *testing.T) {
	list := fakeLister(
		&enumerator.PortDetails{Name: "/dev/ttyUSB0", Product: "whatever"},
	)

	path, err := Resolve(list, "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty for blank criteria", path)
	}
}

func TestResolveWithRetryFindsOnLaterAttempt(t *testing.T) {
	calls := 0
	list := func() ([]*enumerator.PortDetails, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("bus busy")
		}
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", Product: "NANO33_L"},
		}, nil
	}

	// First attempt fails, so one backoff sleep happens; keep the test
	// bounded with a context deadline well past the 2s first wait.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	path := ResolveWithRetry(ctx, list, "NANO33_L", "", 3)
	if path != "/dev/ttyACM0" {
		t.Errorf("path = %q, want /dev/ttyACM0", path)
	}
	if calls != 2 {
		t.Errorf("lister calls = %d, want 2", calls)
	}
}

func TestResolveWithRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := ResolveWithRetry(ctx, fakeLister(), "NANO33_L", "", 8)
	if path != "" {
		t.Errorf("path = %q, want empty on canceled context", path)
	}
}
