package chat

import (
	"regexp"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Kind classifies an inbound line.
type Kind int

const (
	KindIgnored Kind = iota
	KindPing
	KindAuthFailure
	KindMessage
	KindNotice
	KindReconnect
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindAuthFailure:
		return "auth_failure"
	case KindMessage:
		return "message"
	case KindNotice:
		return "notice"
	case KindReconnect:
		return "reconnect"
	default:
		return "ignored"
	}
}

// ServerPing is the keepalive the Twitch relay sends.
const ServerPing = "PING :tmi.twitch.tv"

var (
	authFailurePattern = regexp.MustCompile(`Login authentication failed|Improperly formatted auth`)
	privmsgPattern     = regexp.MustCompile(`^:([^!\s]+)![^@\s]*@\S+ PRIVMSG #(\S+) :(.*)$`)
)

// Line is a classified inbound line.
type Line struct {
	Kind Kind
	// Sender is the author of a channel message.
	Sender string
	// Channel is the channel a message was posted to, without '#'.
	Channel string
	// Payload is the PING token to echo, or the NOTICE text.
	Payload string
}

// ParseLine classifies one line stripped of its terminator. Lines that do not match any
// known shape come back as KindIgnored.
func ParseLine(raw string) Line {
	if raw == ServerPing {
		return Line{Kind: KindPing, Payload: "tmi.twitch.tv"}
	}
	if m := privmsgPattern.FindStringSubmatch(raw); m != nil {
		return Line{Kind: KindMessage, Sender: m[1], Channel: m[2]}
	}
	if raw == "" {
		return Line{Kind: KindIgnored}
	}
	// Viewer text may contain the failure phrases; only server lines count.
	if command(raw) != "PRIVMSG" && authFailurePattern.MatchString(raw) {
		return Line{Kind: KindAuthFailure, Payload: raw}
	}
	return parseTwitch(raw)
}

// command returns the IRC command of raw, skipping IRCv3 tags and the source prefix.
func command(raw string) string {
	rest := raw
	if strings.HasPrefix(rest, "@") {
		_, rest, _ = strings.Cut(rest, " ")
	}
	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, ":") {
		_, rest, _ = strings.Cut(rest, " ")
	}
	cmd, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	return cmd
}

// parseTwitch handles IRCv3-tagged and other Twitch-specific lines.
func parseTwitch(raw string) Line {
	switch msg := twitch.ParseMessage(raw).(type) {
	case *twitch.PingMessage:
		payload := msg.Message
		if payload == "" {
			payload = "tmi.twitch.tv"
		}
		return Line{Kind: KindPing, Payload: payload}
	case *twitch.PrivateMessage:
		// go-twitch-irc accepts a target without '#'; channel messages always carry it.
		if msg.User.Name == "" || !strings.Contains(raw, " PRIVMSG #") {
			return Line{Kind: KindIgnored}
		}
		return Line{Kind: KindMessage, Sender: msg.User.Name, Channel: strings.TrimPrefix(msg.Channel, "#")}
	case *twitch.NoticeMessage:
		return Line{Kind: KindNotice, Payload: msg.Message, Channel: msg.Channel}
	case *twitch.ReconnectMessage:
		return Line{Kind: KindReconnect}
	default:
		return Line{Kind: KindIgnored}
	}
}
