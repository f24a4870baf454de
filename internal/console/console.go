// Package console implements the operator command loop: read-only inspection
// of rooms, clients and catalog entries, plus a quit command.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/catalog"
	"github.com/cory-johannsen/lobby/internal/lobby"
)

const usage = `Lobby server
--------------------------------------
list          list rooms
room <id>     print room information
user <id>     print client information
lookup <id>   print a catalog entry
quit, q       shut down the server
help          show usage
--------------------------------------
`

const prompt = "cmd> "

// Console reads operator commands from in and writes results to out.
type Console struct {
	store         *lobby.Store
	catalog       catalog.Lookup
	lookupTimeout time.Duration
	in            io.Reader
	out           io.Writer
	shutdown      func()
	logger        *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Console. lookup may be nil. shutdown is invoked by quit.
//
// Precondition: store, in, out, shutdown and logger must be non-nil.
func New(store *lobby.Store, lookup catalog.Lookup, in io.Reader, out io.Writer, shutdown func(), logger *zap.Logger) *Console {
	return &Console{
		store:         store,
		catalog:       lookup,
		lookupTimeout: 2 * time.Second,
		in:            in,
		out:           out,
		shutdown:      shutdown,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Start runs the command loop until quit, end of input, or Stop.
//
// Postcondition: Returns nil; a pending read on in may outlive the call.
func (c *Console) Start() error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.stop:
				return
			}
		}
	}()

	fmt.Fprint(c.out, usage)
	for {
		fmt.Fprint(c.out, prompt)
		select {
		case <-c.stop:
			return nil
		case line, ok := <-lines:
			if !ok {
				c.logger.Info("console input closed")
				return nil
			}
			if !c.Execute(line) {
				c.shutdown()
				return nil
			}
		}
	}
}

// Stop ends the command loop.
func (c *Console) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Execute runs one command line.
//
// Postcondition: Returns false if the line asks the server to quit.
func (c *Console) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "list":
		c.list()
	case "room":
		c.room(arg)
	case "user":
		c.user(arg)
	case "lookup":
		c.lookup(arg)
	case "quit", "q":
		fmt.Fprintln(c.out, "Shutting down server...")
		return false
	case "help":
		fmt.Fprint(c.out, usage)
	default:
		fmt.Fprintf(c.out, "unknown command %q\n", fields[0])
		fmt.Fprint(c.out, usage)
	}
	return true
}

func (c *Console) list() {
	rooms := c.store.Rooms()
	fmt.Fprintf(c.out, "Rooms (%d, capacity %d), clients (%d):\n", len(rooms), c.store.Capacity(), c.store.ClientCount())

	table := c.newTable([]string{"ID", "Name", "Players", "Capacity"})
	for _, r := range rooms {
		table.Append([]string{r.ID, r.Name, strconv.Itoa(r.Members), strconv.Itoa(r.Capacity)})
	}
	table.Render()
}

func (c *Console) room(id string) {
	detail, ok := c.store.Room(id)
	if !ok {
		fmt.Fprintf(c.out, "Error while getting room information: no room %q\n", id)
		return
	}
	fmt.Fprintf(c.out, "%s - %s (%d/%d)\n", detail.ID, detail.Name, detail.Members, detail.Capacity)

	table := c.newTable([]string{"Players"})
	for _, member := range detail.MemberIDs {
		table.Append([]string{member})
	}
	table.Render()
}

func (c *Console) user(id string) {
	info, ok := c.store.Client(id)
	if !ok {
		fmt.Fprintf(c.out, "Error while getting user information: no client %q\n", id)
		return
	}
	room := info.RoomID
	if room == "" {
		room = "-"
	}

	table := c.newTable([]string{"ID", "UDP Address", "Room", "Last Seen"})
	table.Append([]string{info.ID, info.Addr, room, info.LastSeen.Format(time.RFC3339)})
	table.Render()
}

func (c *Console) lookup(arg string) {
	if c.catalog == nil {
		fmt.Fprintln(c.out, "No catalog configured")
		return
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid catalog id %q\n", arg)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	defer cancel()
	entries, err := c.catalog.Get(ctx, []int64{id})
	if err != nil {
		c.logger.Warn("console lookup failed", zap.Int64("id", id), zap.Error(err))
		fmt.Fprintf(c.out, "Lookup failed: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.out, "No catalog entry %d\n", id)
		return
	}

	table := c.newTable([]string{"ID", "Name", "Kind", "Description"})
	for _, e := range entries {
		table.Append([]string{strconv.FormatInt(e.ID, 10), e.Name, e.Kind, e.Description})
	}
	table.Render()
}

func (c *Console) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}
