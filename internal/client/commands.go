package client

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/localchat/ragchat/internal/extract"
	"github.com/localchat/ragchat/internal/store"
)

const (
	CmdNew      = "new"
	CmdSessions = "sessions"
	CmdOpen     = "open"
	CmdDelete   = "delete"
	CmdDoc      = "doc"
	CmdNoDoc    = "nodoc"
	CmdThink    = "think"
	CmdVoice    = "voice"
	CmdHelp     = "help"
	CmdQuit     = "quit"
)

const HelpText = `/new            start a new chat
/sessions       list saved chats
/open <id>      open a saved chat
/delete <id>    delete a saved chat
/doc <path>     attach a document for retrieval
/nodoc          detach the document
/think          toggle reasoning
/voice          toggle spoken replies
/quit           exit`

// ErrQuit is returned by Execute for /quit.
var ErrQuit = errors.New("quit")

type Command struct {
	Name string
	Arg  string
}

// ParseCommand recognises input starting with "/". Unknown names are
// returned as-is for Execute to reject.
func ParseCommand(input string) (Command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{}, false
	}
	name, arg, _ := strings.Cut(input[1:], " ")
	return Command{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

// Commands runs slash commands against a conversation.
type Commands struct {
	Conv      *Conversation
	Extractor extract.Extractor
	// OnAttach is called with the path of a newly attached document.
	OnAttach func(path string)
}

// Execute returns a line of feedback for the user.
func (x *Commands) Execute(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Name {
	case CmdNew:
		if err := x.Conv.NewChat(); err != nil {
			return "", err
		}
		return "Started a new chat.", nil

	case CmdSessions:
		lines, err := x.Conv.Sessions(ctx)
		if err != nil {
			return "", fmt.Errorf("unable to load sessions: %w", err)
		}
		return FormatSessions(lines), nil

	case CmdOpen:
		id, err := store.ParseSessionID(cmd.Arg)
		if err != nil {
			return "", errors.New("usage: /open <id>")
		}
		if err := x.Conv.LoadSession(ctx, id); err != nil {
			return "", fmt.Errorf("unable to load session %d: %w", id, err)
		}
		return fmt.Sprintf("Opened chat %d.", id), nil

	case CmdDelete:
		id, err := store.ParseSessionID(cmd.Arg)
		if err != nil {
			return "", errors.New("usage: /delete <id>")
		}
		if err := x.Conv.DeleteSession(ctx, id); err != nil {
			return "", fmt.Errorf("unable to delete session %d: %w", id, err)
		}
		return fmt.Sprintf("Deleted chat %d.", id), nil

	case CmdDoc:
		if cmd.Arg == "" {
			return "", errors.New("usage: /doc <path>")
		}
		text, err := x.Extractor.ExtractFile(cmd.Arg)
		if err != nil {
			return "", err
		}
		name := filepath.Base(cmd.Arg)
		x.Conv.AttachDocument(name, text)
		if x.OnAttach != nil {
			x.OnAttach(cmd.Arg)
		}
		return fmt.Sprintf("Attached %s (%d characters). Replies now use retrieval.", name, len([]rune(text))), nil

	case CmdNoDoc:
		x.Conv.ClearDocument()
		return "Document detached.", nil

	case CmdThink:
		on := !x.Conv.Reasoning()
		x.Conv.SetReasoning(on)
		return "Reasoning " + onOff(on) + ".", nil

	case CmdVoice:
		want := !x.Conv.Voice()
		if got := x.Conv.SetVoice(want); got != want {
			return "Voice output unavailable; start with -speak-cmd.", nil
		}
		return "Voice " + onOff(want) + ".", nil

	case CmdHelp:
		return HelpText, nil

	case CmdQuit:
		return "", ErrQuit
	}
	return "", fmt.Errorf("unknown command /%s, try /help", cmd.Name)
}

func FormatSessions(lines []SessionLine) string {
	if len(lines) == 0 {
		return "No saved chats yet."
	}
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		marker := " "
		if l.Active {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %4d  %s  (%s)", marker, l.ID, l.Title, l.LastMessageAt.Local().Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
