package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueDrain(t *testing.T) {
	q := NewQueue()
	q.Notify(Success("A", nil))
	q.Notify(Error("B", map[string]any{"X": 1}))

	assert.Equal(t, 2, q.Len())

	got := q.Drain()
	assert.Equal(t, []Notification{
		{Level: LevelSuccess, MessageID: "A"},
		{Level: LevelError, MessageID: "B", Data: map[string]any{"X": 1}},
	}, got)
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueueConcurrentNotify(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Notify(Info("tick", nil))
		}()
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 50)
}
