package retry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/binal-re/binal/internal/retry"
)

var errNotListening = errors.New("sync server not listening")

// Example retries a dial until the server comes up.
func Example() {
	cfg := retry.Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	}

	attempt := 0
	err := retry.Do(context.Background(), cfg, func() error {
		attempt++
		if attempt < 3 {
			return errNotListening
		}
		return nil
	}, func(err error) bool {
		return errors.Is(err, errNotListening)
	})

	if err != nil {
		fmt.Printf("Failed: %v\n", err)
	} else {
		fmt.Printf("Connected after %d attempts\n", attempt)
	}
	// Output: Connected after 3 attempts
}
