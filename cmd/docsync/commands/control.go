package commands

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/teranos/docsync/errors"
	"github.com/teranos/docsync/remotestore"
)

// The control socket is a manual-testing convenience, not a real control
// plane: a line-based protocol over a unix socket so `docsync listen` can
// nudge a running `docsync start` daemon without a second network hop.
//
// Requests:
//   LISTEN <collection-path> [filter]
//   UNLISTEN <target-id>
//
// LISTEN allocates the next target id itself and answers "OK target=<id>".
// Responses: "OK", "OK target=<id>" or "ERR <message>", one line,
// connection closed after.

func dialControl(sockPath string, line string) (string, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return "", errors.Wrapf(err, "dial control socket %s (is docsync start running?)", sockPath)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, line); err != nil {
		return "", errors.Wrap(err, "write control request")
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "read control response")
	}
	return strings.TrimSpace(resp), nil
}

// serveControl accepts connections on sockPath until the listener is closed,
// dispatching each request onto store on the caller's goroutine (RemoteStore
// methods are safe to call from any goroutine; they hand off to its worker).
func serveControl(ln net.Listener, store *remotestore.RemoteStore) {
	var nextTarget int32
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handleControlConn(conn, store, &nextTarget)
	}
}

func handleControlConn(conn net.Conn, store *remotestore.RemoteStore, nextTarget *int32) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		fmt.Fprintln(conn, "ERR empty request")
		return
	}

	switch strings.ToUpper(fields[0]) {
	case "LISTEN":
		if len(fields) < 2 {
			fmt.Fprintln(conn, "ERR usage: LISTEN <collection-path> [filter]")
			return
		}
		*nextTarget++
		qd := remotestore.QueryData{
			Query:    remotestore.Query{CollectionPath: fields[1]},
			TargetID: remotestore.TargetID(*nextTarget),
			Purpose:  remotestore.PurposeListen,
		}
		if len(fields) > 2 {
			qd.Query.Filter = strings.Join(fields[2:], " ")
		}
		store.Listen(qd)
		fmt.Fprintf(conn, "OK target=%d\n", qd.TargetID)
	case "UNLISTEN":
		if len(fields) != 2 {
			fmt.Fprintln(conn, "ERR usage: UNLISTEN <target-id>")
			return
		}
		id, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			fmt.Fprintf(conn, "ERR invalid target id: %v\n", err)
			return
		}
		store.Unlisten(remotestore.TargetID(id))
		fmt.Fprintln(conn, "OK")
	default:
		fmt.Fprintf(conn, "ERR unknown command %q\n", fields[0])
	}
}

func removeStaleSocket(path string) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
}
