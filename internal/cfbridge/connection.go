package cfbridge

import (
	"fmt"
	"sync/atomic"
)

// ConnState is the lifecycle state of a sync-root connection.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connection tracks the single live registration of a Bridge. Transitions
// are made by the lifecycle methods under the bridge's lifecycle lock; the
// state is read lock-free by callback threads.
type Connection struct {
	state atomic.Int32
	key   atomic.Int64
	root  atomic.Pointer[string]
}

// State returns the current state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// Key returns the connection key, valid while Connected.
func (c *Connection) Key() ConnectionKey { return ConnectionKey(c.key.Load()) }

// Root returns the sync-root path passed to Connect.
func (c *Connection) Root() string {
	if p := c.root.Load(); p != nil {
		return *p
	}
	return ""
}

// Live reports whether callbacks for this connection should be served.
// Registration may deliver callbacks before Connect returns.
func (c *Connection) Live() bool {
	s := c.State()
	return s == Connected || s == Connecting
}

func (c *Connection) beginConnect(root string) {
	c.root.Store(&root)
	c.state.Store(int32(Connecting))
}

func (c *Connection) established(key ConnectionKey) {
	c.key.Store(int64(key))
	c.state.Store(int32(Connected))
}

func (c *Connection) set(s ConnState) { c.state.Store(int32(s)) }

func (c *Connection) reset() {
	c.key.Store(0)
	c.state.Store(int32(Disconnected))
}
