package chat

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}

	r.Register("client-1", "tab-1", conn)

	conns := r.Connections("client-1")
	if len(conns) != 1 || conns[0] != conn {
		t.Errorf("Expected connection %v, got %v", conn, conns)
	}
	if !r.Online("client-1") {
		t.Error("Expected client to be online")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}

	r.Register("client-1", "tab-1", conn)
	r.Unregister("client-1", "tab-1", conn)

	if r.Online("client-1") {
		t.Errorf("Expected no connections, got %v", r.Connections("client-1"))
	}
}

func TestRegistry_UnregisterKeepsOtherTabs(t *testing.T) {
	r := NewRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	r.Register("client-1", "tab-1", conn1)
	r.Register("client-1", "tab-2", conn2)
	r.Unregister("client-1", "tab-1", conn1)

	conns := r.Connections("client-1")
	if len(conns) != 1 || conns[0] != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, conns)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Register("client-1", "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = r.Connections("client-1")
		}
	}()
	wg.Wait()

	if got := len(r.Connections("client-1")); got != 1000 {
		t.Errorf("Expected 1000 connections, got %d", got)
	}
}
