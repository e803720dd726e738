package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/aria-assistant/internal/shell"
)

func printSnapshot(w io.Writer, snap shell.Snapshot) {
	open := "closed"
	if snap.IsOpen {
		open = "open"
	}
	fmt.Fprintf(w, "Panel:      %s\n", open)
	fmt.Fprintf(w, "Connection: %s\n", snap.ConnectionState)
	if snap.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:      %s\n", snap.ErrorMessage)
	}
	if snap.Hint != "" {
		fmt.Fprintf(w, "Hint:       %s\n", snap.Hint)
	}
}

func status(ctx context.Context, c *client) error {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	printSnapshot(stdout, snap)
	return nil
}

func readiness(ctx context.Context, c *client) error {
	resp, err := c.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Status:  %s (version %s, up %ds)\n", resp.Status, resp.Version, resp.UptimeSeconds)

	names := make([]string, 0, len(resp.Components))
	for name := range resp.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		comp := resp.Components[name]
		line := fmt.Sprintf("  %-14s %s", name, comp.Status)
		if comp.Error != "" {
			line += " (" + comp.Error + ")"
		}
		fmt.Fprintln(stdout, line)
	}

	s := resp.Stats.Session
	fmt.Fprintf(stdout, "Session: %s gen=%d queued=%d\n", s.State, s.Generation, s.QueueLength)
	if s.SessionID != "" {
		fmt.Fprintf(stdout, "  id:       %s\n", s.SessionID)
	}
	fmt.Fprintf(stdout, "  outbound: sent=%d failed=%d dropped=%d\n", s.Outbound.Sent, s.Outbound.Failed, s.Outbound.Dropped)
	return nil
}

func open(ctx context.Context, c *client) error {
	snap, err := c.Open(ctx)
	if err != nil {
		return err
	}
	printSnapshot(stdout, snap)
	return nil
}

func closePanel(ctx context.Context, c *client) error {
	snap, err := c.Close(ctx)
	if err != nil {
		return err
	}
	printSnapshot(stdout, snap)
	return nil
}

func toggle(ctx context.Context, c *client, openFirst bool) error {
	if openFirst {
		if _, err := c.Open(ctx); err != nil {
			return err
		}
	}
	resp, err := c.Toggle(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Action:     %s\n", resp.Action)
	printSnapshot(stdout, resp.Snapshot)
	return nil
}

func watch(ctx context.Context, c *client, w io.Writer, bars bool) error {
	conn, err := c.Events(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		var ev shell.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := printEvent(w, ev, bars); err != nil {
			return err
		}
	}
}

func printEvent(w io.Writer, ev shell.Event, bars bool) error {
	switch ev.Type {
	case shell.EventState:
		if ev.State == nil {
			return errors.New("state event without snapshot")
		}
		line := fmt.Sprintf("%s state=%s open=%t", ev.Timestamp.Format("15:04:05.000"), ev.State.ConnectionState, ev.State.IsOpen)
		if ev.State.ErrorMessage != "" {
			line += fmt.Sprintf(" error=%q", ev.State.ErrorMessage)
		}
		_, err := fmt.Fprintln(w, line)
		return err
	case shell.EventVisualizer:
		if !bars || ev.Frame == nil {
			return nil
		}
		_, err := fmt.Fprintf(w, "\r%s", renderBars(ev.Frame.Levels))
		return err
	}
	return nil
}

var barGlyphs = []rune(" ▁▂▃▄▅▆▇█")

func renderBars(levels []float64) string {
	var b strings.Builder
	for _, l := range levels {
		if l < 0 {
			l = 0
		}
		if l > 1 {
			l = 1
		}
		b.WriteRune(barGlyphs[int(l*float64(len(barGlyphs)-1)+0.5)])
	}
	return b.String()
}
