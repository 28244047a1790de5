package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, []int{1, 2, 3}, q.Drain())
	assert.Zero(t, q.Len())
	assert.Nil(t, q.Drain())
}

func TestZeroValue(t *testing.T) {
	var q Queue[string]
	q.Push("a")
	assert.Equal(t, []string{"a"}, q.Drain())
	assert.Nil(t, q.Ready())
}

func TestReadySignal(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	select {
	case <-q.Ready():
	default:
		t.Fatal("нет сигнала после Push")
	}
	select {
	case <-q.Ready():
		t.Fatal("сигналы должны схлопываться")
	default:
	}
}

func TestConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 800)
}
