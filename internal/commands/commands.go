// Package commands handles slash command parsing for the coxswain hosts.
// Commands execute outside the turn state machine: they never queue behind or
// pre-empt an in-flight turn.
package commands

import "strings"

// Command is implemented by every parsed slash command.
type Command interface {
	Type() string
}

// Help requests the command overview.
type Help struct{}

func (Help) Type() string { return "help" }

// Quit exits the client.
type Quit struct{}

func (Quit) Type() string { return "quit" }

// ShowQueue lists the parked messages.
type ShowQueue struct{}

func (ShowQueue) Type() string { return "queue" }

// ClearQueue drops every parked message.
type ClearQueue struct{}

func (ClearQueue) Type() string { return "clear_queue" }

// EditQueued rewrites a parked message in place.
type EditQueued struct {
	Index   int
	Content string
}

func (EditQueued) Type() string { return "edit_queued" }

// Status requests the coordinator status and metrics summary.
type Status struct{}

func (Status) Type() string { return "status" }

// ShowHistory lists the finalized turns of the session.
type ShowHistory struct{}

func (ShowHistory) Type() string { return "history" }

// ParseError reports invalid command input.
type ParseError struct {
	Message string
}

func (ParseError) Type() string { return "error" }

// Parse interprets a slash command. Returns nil when the input is not a
// command at all, so callers can route it into the turn state machine.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help":
		return Help{}

	case "/quit", "/exit":
		return Quit{}

	case "/queue":
		if len(args) == 0 {
			return ShowQueue{}
		}
		switch strings.ToLower(args[0]) {
		case "clear":
			return ClearQueue{}
		case "edit":
			if len(args) < 3 {
				return ParseError{Message: "/queue edit requires an index and new content"}
			}
			index, ok := parseIndex(args[1])
			if !ok {
				return ParseError{Message: "/queue edit: index must be a non-negative number"}
			}
			return EditQueued{Index: index, Content: strings.Join(args[2:], " ")}
		default:
			return ParseError{Message: "/queue supports: clear, edit"}
		}

	case "/status":
		return Status{}

	case "/history":
		return ShowHistory{}

	default:
		return ParseError{Message: "unknown command " + cmd + " (try /help)"}
	}
}

func parseIndex(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// HelpText is printed for /help.
const HelpText = `Commands:
  /help             show this overview
  /queue            list parked messages
  /queue clear      drop every parked message
  /queue edit N ... rewrite parked message N in place
  /status           coordinator status and counters
  /history          finalized turns of this session
  /quit             exit`
