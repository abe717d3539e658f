package command

import (
	"fmt"
	"strings"

	"github.com/nhle/codeinsight/internal/model"
)

// Name identifies a palette command.
type Name string

const (
	Mode    Name = "mode"
	Explain Name = "explain"
	Load    Name = "load"
	Reset   Name = "new"
	History Name = "history"
	Setup   Name = "setup"
	Quit    Name = "quit"
)

// Command is a parsed palette line.
type Command struct {
	Name Name

	// Mode is set for the mode command.
	Mode model.UIMode

	// Arg is the raw argument, such as the path for load.
	Arg string
}

var aliases = map[string]Name{
	"m":       Mode,
	"mode":    Mode,
	"e":       Explain,
	"explain": Explain,
	"l":       Load,
	"load":    Load,
	"open":    Load,
	"new":     Reset,
	"reset":   Reset,
	"h":       History,
	"history": History,
	"setup":   Setup,
	"q":       Quit,
	"quit":    Quit,
	"exit":    Quit,
}

// Parse parses a palette line such as "mode split" or ":load main.go".
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), ":"))
	head, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	name, ok := aliases[strings.ToLower(head)]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", head)
	}

	cmd := Command{Name: name, Arg: arg}
	switch name {
	case Mode:
		if arg == "" {
			return Command{}, fmt.Errorf("mode: expected one of split, chat, source, smart")
		}
		mode, err := model.ParseMode(arg)
		if err != nil {
			return Command{}, err
		}
		cmd.Mode = mode
	case Load:
		if arg == "" {
			return Command{}, fmt.Errorf("load: missing path")
		}
	}
	return cmd, nil
}
