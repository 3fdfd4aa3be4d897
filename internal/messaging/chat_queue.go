package messaging

import (
	"sync"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// chatQueue runs updates in arrival order per chat. A chat gets one worker while it has pending
// updates; the worker exits when its backlog is empty.
type chatQueue struct {
	mu      sync.Mutex
	pending map[string][]models.Update
	handle  func(models.Update)
	wg      sync.WaitGroup
}

func newChatQueue(handle func(models.Update)) *chatQueue {
	return &chatQueue{pending: make(map[string][]models.Update), handle: handle}
}

// push appends u to its chat's backlog and starts a worker if none is running.
func (q *chatQueue) push(u models.Update) {
	q.mu.Lock()
	backlog, running := q.pending[u.ChatKey]
	q.pending[u.ChatKey] = append(backlog, u)
	q.mu.Unlock()

	if !running {
		q.wg.Add(1)
		go q.drain(u.ChatKey)
	}
}

func (q *chatQueue) drain(chatKey string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		backlog := q.pending[chatKey]
		if len(backlog) == 0 {
			delete(q.pending, chatKey)
			q.mu.Unlock()
			return
		}
		u := backlog[0]
		q.pending[chatKey] = backlog[1:]
		q.mu.Unlock()

		q.handle(u)
	}
}

// active returns the number of chats with a running worker.
func (q *chatQueue) active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// wait blocks until every worker has exited.
func (q *chatQueue) wait() {
	q.wg.Wait()
}
