package native

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_PushDrain(t *testing.T) {
	q := NewQueue[string]()
	assert.Empty(t, q.Drain())

	q.Push("a")
	q.Push("b")
	select {
	case <-q.Ready():
	default:
		t.Fatal("Ready not signalled after Push")
	}
	assert.Equal(t, []string{"a", "b"}, q.Drain())
	assert.Empty(t, q.Drain())
}

func TestQueue_PushFromObserverDoesNotBlock(t *testing.T) {
	v := NewMemView()
	q := NewQueue[Event]()
	sub := v.Subscribe(ObserverFunc(q.Push))
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			assert.NoError(t, v.DefineType("E", EnumOf("E", 4)))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifying goroutine blocked")
	}
	assert.Len(t, q.Drain(), 100)
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := NewQueue[int]()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.Drain(), 400)
}
