package stream

import (
	"strings"
)

// Event names understood by the consumer.
const (
	EventDelta   = "delta"
	EventError   = "error"
	EventDone    = "done"
	EventMessage = "message" // name used when a block carries no event: line
)

// delimiter separates events in the byte stream.
const delimiter = "\n\n"

// Event is one parsed block of the event stream.
type Event struct {
	Name string
	Data string
}

// Parse appends fragment to buffer and splits off every complete event.
// The trailing incomplete block is returned as rest so it can be completed
// by the next fragment. Blocks with neither an event nor a data line are
// dropped.
func Parse(buffer, fragment string) (rest string, events []Event) {
	buf := buffer + fragment
	for {
		i := strings.Index(buf, delimiter)
		if i < 0 {
			return buf, events
		}
		block := buf[:i]
		buf = buf[i+len(delimiter):]
		if ev, ok := parseBlock(block); ok {
			events = append(events, ev)
		}
	}
}

func parseBlock(block string) (Event, bool) {
	ev := Event{Name: EventMessage}
	var data []string
	seen := false
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(line[len("event:"):])
			seen = true
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(line[len("data:"):]))
			seen = true
		}
	}
	if !seen {
		return Event{}, false
	}
	ev.Data = strings.Join(data, "\n")
	return ev, true
}

// Parser accumulates fragments across reads and yields complete events.
type Parser struct {
	buf string
}

// Feed consumes the next fragment and returns the events it completed.
func (p *Parser) Feed(fragment []byte) []Event {
	var events []Event
	p.buf, events = Parse(p.buf, string(fragment))
	return events
}

// Buffered returns the incomplete tail waiting for more input.
func (p *Parser) Buffered() string {
	return p.buf
}

// Reset discards any buffered input.
func (p *Parser) Reset() {
	p.buf = ""
}
