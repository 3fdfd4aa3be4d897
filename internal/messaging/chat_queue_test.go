package messaging

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

func TestChatQueue_OrderPerChat(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]string)
	q := newChatQueue(func(u models.Update) {
		if u.ChatKey == "a" {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		got[u.ChatKey] = append(got[u.ChatKey], u.ID)
		mu.Unlock()
	})

	want := make(map[string][]string)
	for i := 0; i < 30; i++ {
		chat := []string{"a", "b", "c"}[i%3]
		id := fmt.Sprint(i)
		want[chat] = append(want[chat], id)
		q.push(models.Update{ID: id, ChatKey: chat})
	}
	q.wait()

	assert.Equal(t, want, got)
	assert.Equal(t, 0, q.active())
}

func TestChatQueue_ChatsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	done := make(chan string, 2)
	q := newChatQueue(func(u models.Update) {
		if u.ChatKey == "slow" {
			<-release
		}
		done <- u.ChatKey
	})

	q.push(models.Update{ID: "1", ChatKey: "slow"})
	q.push(models.Update{ID: "2", ChatKey: "fast"})

	select {
	case chat := <-done:
		assert.Equal(t, "fast", chat)
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked chat held up another chat")
	}
	close(release)
	q.wait()
	assert.Equal(t, "slow", <-done)
}

func TestChatQueue_RestartsAfterIdle(t *testing.T) {
	var mu sync.Mutex
	var got []string
	q := newChatQueue(func(u models.Update) {
		mu.Lock()
		got = append(got, u.ID)
		mu.Unlock()
	})

	q.push(models.Update{ID: "1", ChatKey: "a"})
	q.wait()
	assert.Equal(t, 0, q.active())

	q.push(models.Update{ID: "2", ChatKey: "a"})
	q.wait()
	assert.Equal(t, []string{"1", "2"}, got)
}
