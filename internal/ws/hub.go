package ws

import (
	"github.com/C4boose/hfconvo/internal/metrics"
)

// Hub 管理全部 WebSocket 客户端的注册、注销与广播。HackConvo 只有
// 一个全局房间，所有事件都对全体连接扇出。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	evict      chan string
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		evict:      make(chan string, 16),
	}
}

// Run 事件循环，所有对 clients 的读写都发生在这个 goroutine 里。
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			metrics.WsConnections.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.WsConnections.Dec()
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
					metrics.WsConnections.Dec()
				}
			}
		case username := <-h.evict:
			for c := range h.clients {
				if c.username != username {
					continue
				}
				close(c.send)
				delete(h.clients, c)
				metrics.WsConnections.Dec()
			}
		}
	}
}

// Broadcast 把一帧数据扇出给全部客户端。
func (h *Hub) Broadcast(b []byte) {
	if b == nil {
		return
	}
	h.broadcast <- b
}

// EvictUser 断开某用户名的全部连接，封禁与踢出后调用。
func (h *Hub) EvictUser(username string) {
	h.evict <- username
}
