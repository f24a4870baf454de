package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/lobby/internal/catalog"
	"github.com/cory-johannsen/lobby/internal/lobby"
)

type brokenCatalog struct{}

func (brokenCatalog) Get(context.Context, []int64) ([]catalog.Entry, error) {
	return nil, errors.New("connection refused")
}

func newTestConsole(t *testing.T, store *lobby.Store, lookup catalog.Lookup, in io.Reader) (*Console, *bytes.Buffer, *atomic.Int32) {
	t.Helper()
	out := &bytes.Buffer{}
	quits := &atomic.Int32{}
	c := New(store, lookup, in, out, func() { quits.Add(1) }, zaptest.NewLogger(t))
	return c, out, quits
}

func TestExecute_List(t *testing.T) {
	store := lobby.NewStore(4)
	id := store.Create("lounge")
	c, out, _ := newTestConsole(t, store, nil, strings.NewReader(""))

	assert.True(t, c.Execute("list"))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "lounge")
	assert.Contains(t, out.String(), "Rooms (1, capacity 4), clients (0)")
}

func TestExecute_Room(t *testing.T) {
	store := lobby.NewStore(4)
	roomID := store.Create("lounge")
	client := store.Register(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000})
	require.NoError(t, store.Join(client.ID, roomID))
	c, out, _ := newTestConsole(t, store, nil, strings.NewReader(""))

	c.Execute("room " + roomID)
	assert.Contains(t, out.String(), roomID+" - lounge (1/4)")
	assert.Contains(t, out.String(), client.ID)

	out.Reset()
	c.Execute("room nope")
	assert.Contains(t, out.String(), "Error while getting room information")
}

func TestExecute_User(t *testing.T) {
	store := lobby.NewStore(4)
	client := store.Register(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000})
	c, out, _ := newTestConsole(t, store, nil, strings.NewReader(""))

	c.Execute("user " + client.ID)
	assert.Contains(t, out.String(), client.ID)
	assert.Contains(t, out.String(), "10.0.0.1:4000")

	out.Reset()
	c.Execute("user")
	assert.Contains(t, out.String(), "Error while getting user information")
}

func TestExecute_Lookup(t *testing.T) {
	store := lobby.NewStore(4)
	mem := catalog.NewMemory(catalog.Entry{ID: 6983839, Name: "Tornado Dragon", Kind: "XYZ Monster"})
	c, out, _ := newTestConsole(t, store, mem, strings.NewReader(""))

	c.Execute("lookup 6983839")
	assert.Contains(t, out.String(), "Tornado Dragon")

	out.Reset()
	c.Execute("lookup 1")
	assert.Contains(t, out.String(), "No catalog entry 1")

	out.Reset()
	c.Execute("lookup abc")
	assert.Contains(t, out.String(), "Invalid catalog id")
}

func TestExecute_LookupWithoutOrBrokenCatalog(t *testing.T) {
	store := lobby.NewStore(4)
	c, out, _ := newTestConsole(t, store, nil, strings.NewReader(""))
	c.Execute("lookup 1")
	assert.Contains(t, out.String(), "No catalog configured")

	c, out, _ = newTestConsole(t, store, brokenCatalog{}, strings.NewReader(""))
	c.Execute("lookup 1")
	assert.Contains(t, out.String(), "Lookup failed")
}

func TestExecute_HelpUnknownAndBlank(t *testing.T) {
	c, out, _ := newTestConsole(t, lobby.NewStore(4), nil, strings.NewReader(""))

	assert.True(t, c.Execute("help"))
	assert.Contains(t, out.String(), "quit, q")

	out.Reset()
	assert.True(t, c.Execute("dance"))
	assert.Contains(t, out.String(), `unknown command "dance"`)

	out.Reset()
	assert.True(t, c.Execute("   "))
	assert.Empty(t, out.String())
}

func TestExecute_Quit(t *testing.T) {
	c, _, _ := newTestConsole(t, lobby.NewStore(4), nil, strings.NewReader(""))
	assert.False(t, c.Execute("quit"))
	assert.False(t, c.Execute("q"))
}

func TestStart_QuitInvokesShutdown(t *testing.T) {
	c, out, quits := newTestConsole(t, lobby.NewStore(4), nil, strings.NewReader("list\nq\nlist\n"))

	require.NoError(t, c.Start())
	assert.Equal(t, int32(1), quits.Load())
	assert.Contains(t, out.String(), "Shutting down server...")
}

func TestStart_EndOfInputReturnsWithoutShutdown(t *testing.T) {
	c, _, quits := newTestConsole(t, lobby.NewStore(4), nil, strings.NewReader("help\n"))

	require.NoError(t, c.Start())
	assert.Zero(t, quits.Load())
}

func TestStart_StopUnblocksPendingRead(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c, _, quits := newTestConsole(t, lobby.NewStore(4), nil, r)

	done := make(chan error, 1)
	go func() { done <- c.Start() }()

	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop")
	}
	assert.Zero(t, quits.Load())
}
