package control

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CmdShutdown asks the streamer to stop.
const CmdShutdown = "shutdown"

// ErrMalformed is returned for payloads that are not a JSON object.
var ErrMalformed = errors.New("malformed command")

// Command is the inbound control message, e.g. {"cmd":"shutdown"}.
type Command struct {
	Cmd string `json:"cmd"`
}

// IsShutdown reports whether the command requests a stop.
func (c Command) IsShutdown() bool { return c.Cmd == CmdShutdown }

// Decode parses a control payload.
func Decode(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cmd, nil
}

// Encode serializes a command.
func Encode(cmd Command) []byte {
	b, _ := json.Marshal(cmd)
	return b
}
