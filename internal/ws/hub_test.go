package ws

import (
	"sync"
	"testing"
	"time"
)

func newTestClient(username string) *Client {
	return &Client{
		username: username,
		send:     make(chan []byte, 256),
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	h := NewHub()
	go h.Run()

	clients := []*Client{newTestClient("alice"), newTestClient("bob"), newTestClient("carol")}
	for _, c := range clients {
		h.register <- c
	}
	time.Sleep(20 * time.Millisecond)

	testMsg := []byte(`{"type":"message","data":{"text":"hello"}}`)
	h.Broadcast(testMsg)

	var wg sync.WaitGroup
	received := make([]bool, len(clients))
	for i, c := range clients {
		wg.Add(1)
		go func(idx int, client *Client) {
			defer wg.Done()
			select {
			case msg := <-client.send:
				if string(msg) == string(testMsg) {
					received[idx] = true
				}
			case <-time.After(100 * time.Millisecond):
			}
		}(i, c)
	}
	wg.Wait()

	for i, r := range received {
		if !r {
			t.Errorf("client %d did not receive broadcast", i)
		}
	}
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := newTestClient("alice")
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	h.unregister <- c
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-c.send; ok {
		t.Error("send channel not closed after unregister")
	}
}

func TestHub_BroadcastNilIgnored(t *testing.T) {
	h := NewHub()
	// 不启动 Run：nil 帧必须在入队前就被丢弃，否则这里会阻塞。
	h.Broadcast(nil)
}

func TestHub_EvictUser(t *testing.T) {
	h := NewHub()
	go h.Run()

	a1 := newTestClient("alice")
	a2 := newTestClient("alice")
	b := newTestClient("bob")
	for _, c := range []*Client{a1, a2, b} {
		h.register <- c
	}
	time.Sleep(20 * time.Millisecond)

	h.EvictUser("alice")
	time.Sleep(20 * time.Millisecond)

	for i, c := range []*Client{a1, a2} {
		select {
		case _, ok := <-c.send:
			if ok {
				t.Errorf("alice client %d got data instead of close", i)
			}
		default:
			t.Errorf("alice client %d send channel not closed", i)
		}
	}

	// bob 不受影响，仍能收到广播。
	h.Broadcast([]byte("ping"))
	select {
	case msg := <-b.send:
		if string(msg) != "ping" {
			t.Errorf("bob got %q, want ping", msg)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("bob did not receive broadcast after eviction of alice")
	}
}

func TestHub_ConcurrentRegister(t *testing.T) {
	h := NewHub()
	go h.Run()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.register <- newTestClient("user")
		}()
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	h.Broadcast([]byte("x"))
}
