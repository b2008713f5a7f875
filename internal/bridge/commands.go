package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad command argument")
)

// Command is the numeric id a host uses to dispatch a view command.
type Command int

const (
	SaveImage             Command = 1
	RotateImage           Command = 2
	FlipImageHorizontally Command = 3
	FlipImageVertically   Command = 4
	ResetImage            Command = 5
)

var commandNames = map[Command]string{
	SaveImage:             "saveImage",
	RotateImage:           "rotateImage",
	FlipImageHorizontally: "flipImageHorizontally",
	FlipImageVertically:   "flipImageVertically",
	ResetImage:            "resetImage",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Commands returns the exported command table, name to id.
func Commands() map[string]Command {
	out := make(map[string]Command, len(commandNames))
	for id, name := range commandNames {
		out[name] = id
	}
	return out
}

// ParseCommand looks a command up by its exported name.
func ParseCommand(name string) (Command, error) {
	for id, n := range commandNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// boolArg reads args[i] as a bool, or def when it is absent.
func boolArg(args []any, i int, def bool) (bool, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	v, ok := args[i].(bool)
	if !ok {
		return def, fmt.Errorf("%w: argument %d is %T, want bool", ErrBadArgument, i, args[i])
	}
	return v, nil
}

// intArg reads args[i] as an int. Hosts that speak JSON deliver float64.
func intArg(args []any, i int, def int) (int, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return def, fmt.Errorf("%w: argument %d is not integral: %v", ErrBadArgument, i, v)
		}
		return int(v), nil
	default:
		return def, fmt.Errorf("%w: argument %d is %T, want int", ErrBadArgument, i, args[i])
	}
}
