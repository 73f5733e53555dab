// Package router classifies inbound messages: slash commands with
// arguments, replies to an anchored list, or noise. It owns the selector
// grammar replies must follow but knows nothing about sessions.
package router

import (
	"strconv"
	"strings"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/media"
)

type Kind int

const (
	KindCommand Kind = iota
	KindReply
	KindUnrecognized
)

// Selector is a parsed reply to a numbered list: an index with an
// optional category override. Valid is false when the text does not fit
// the grammar; Raw keeps the text for kinds with their own grammar.
type Selector struct {
	Valid    bool
	Index    int
	Override media.Category
	Raw      string
}

// Route is the classification of one inbound message.
type Route struct {
	Kind     Kind
	Command  string
	Args     string
	AnchorID string
	Selector Selector
}

// Classify routes a message. Replies are routed on the replied-to
// message; everything else must be a slash command. A bare IMDb link is
// treated as /imdb for convenience.
func Classify(msg bus.InboundMessage) Route {
	text := strings.TrimSpace(msg.Content)

	if msg.ReplyToID != "" {
		return Route{
			Kind:     KindReply,
			AnchorID: msg.ReplyToID,
			Selector: ParseSelector(text),
		}
	}

	if strings.HasPrefix(text, "https://www.imdb.com") || strings.HasPrefix(text, "https://imdb.com") {
		return Route{Kind: KindCommand, Command: "/imdb", Args: text}
	}

	if !strings.HasPrefix(text, "/") {
		return Route{Kind: KindUnrecognized}
	}

	command, args, _ := strings.Cut(text, " ")
	// Group chats address commands as /search@BotName.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	return Route{Kind: KindCommand, Command: command, Args: strings.TrimSpace(args)}
}

// ParseSelector parses reply text against the selector grammar: a bare
// index, or a tv/movie keyword followed by an index. Keywords are
// case-insensitive.
func ParseSelector(text string) Selector {
	sel := Selector{Raw: text}

	fields := strings.Fields(text)
	switch len(fields) {
	case 1:
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return sel
		}
		sel.Valid = true
		sel.Index = n
	case 2:
		cat, ok := media.Parse(fields[0])
		if !ok {
			return sel
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return sel
		}
		sel.Valid = true
		sel.Index = n
		sel.Override = cat
	}

	return sel
}
