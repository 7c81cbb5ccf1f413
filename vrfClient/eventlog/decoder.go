// Package eventlog decodes Anchor events from Solana transaction logs.
//
// Anchor programs emit events as "Program data: <base64>" log lines. The
// payload starts with an 8-byte discriminator followed by the Borsh encoded
// event. The decoder tracks the invocation stack so that each event is
// attributed to the program that emitted it, including CPI callees.
package eventlog

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	programPrefix   = "Program "
	dataPrefix      = "Program data: "
	logPrefix       = "Program log: "
	returnPrefix    = "Program return: "
	truncatedMarker = "Log truncated"

	// DiscriminatorSize is the length of the Anchor event discriminator.
	DiscriminatorSize = 8
)

// Event is a "Program data:" payload emitted by a watched program.
type Event struct {
	ProgramID solana.PublicKey
	Data      []byte
}

// Discriminator returns the first 8 bytes of the payload.
func (e Event) Discriminator() []byte {
	return e.Data[:DiscriminatorSize]
}

// Body returns the payload after the discriminator.
func (e Event) Body() []byte {
	return e.Data[DiscriminatorSize:]
}

// DecodeError describes a log line the decoder could not accept.
type DecodeError struct {
	Index  int
	Line   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("log %d %q: %s", e.Index, e.Line, e.Reason)
}

// EventDiscriminator returns the Anchor discriminator of the named event,
// sha256("event:<name>")[:8].
func EventDiscriminator(name string) [DiscriminatorSize]byte {
	var out [DiscriminatorSize]byte
	sum := sha256.Sum256([]byte("event:" + name))
	copy(out[:], sum[:DiscriminatorSize])
	return out
}

// Decoder extracts events emitted by a fixed set of programs.
type Decoder struct {
	programs map[solana.PublicKey]struct{}
}

// NewDecoder returns a decoder watching the given programs.
func NewDecoder(programs []solana.PublicKey) *Decoder {
	set := make(map[solana.PublicKey]struct{}, len(programs))
	for _, p := range programs {
		set[p] = struct{}{}
	}
	return &Decoder{programs: set}
}

// Decode walks the logs of one transaction. It returns every event emitted
// while a watched program was on top of the invocation stack, and every
// decode error encountered. Callers must treat a non-empty error slice as a
// failed decode of the whole transaction.
func (d *Decoder) Decode(logs []string) ([]Event, []error) {
	var (
		events []Event
		errs   []error
		stack  []solana.PublicKey
	)
	fail := func(i int, line, reason string) {
		errs = append(errs, &DecodeError{Index: i, Line: line, Reason: reason})
	}

	for i, line := range logs {
		switch {
		case line == truncatedMarker:
			fail(i, line, "logs truncated")

		case strings.HasPrefix(line, dataPrefix):
			if len(stack) == 0 {
				fail(i, line, "program data outside of an invocation")
				continue
			}
			current := stack[len(stack)-1]
			if _, watched := d.programs[current]; !watched {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, dataPrefix))
			if err != nil {
				fail(i, line, "invalid base64 payload: "+err.Error())
				continue
			}
			if len(data) < DiscriminatorSize {
				fail(i, line, fmt.Sprintf("payload too short: %d bytes", len(data)))
				continue
			}
			events = append(events, Event{ProgramID: current, Data: data})

		case strings.HasPrefix(line, logPrefix), strings.HasPrefix(line, returnPrefix):

		case strings.HasPrefix(line, programPrefix):
			var err error
			stack, err = step(stack, strings.TrimPrefix(line, programPrefix))
			if err != nil {
				fail(i, line, err.Error())
			}
		}
	}

	if len(stack) > 0 && len(errs) == 0 {
		fail(len(logs), "", fmt.Sprintf("invocation of %s never completed", stack[len(stack)-1]))
	}
	return events, errs
}

// step applies one "Program <id> ..." line to the invocation stack.
func step(stack []solana.PublicKey, rest string) ([]solana.PublicKey, error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return stack, nil
	}
	id, err := solana.PublicKeyFromBase58(fields[0])
	if err != nil {
		// "Program is not deployed" and similar runtime messages.
		return stack, nil
	}

	switch fields[1] {
	case "invoke":
		if len(fields) != 3 {
			return stack, fmt.Errorf("malformed invoke")
		}
		depth, err := strconv.Atoi(strings.Trim(fields[2], "[]"))
		if err != nil {
			return stack, fmt.Errorf("malformed invoke depth")
		}
		if depth != len(stack)+1 {
			return stack, fmt.Errorf("invoke depth %d at stack height %d", depth, len(stack))
		}
		return append(stack, id), nil

	case "success", "failed:", "failed":
		if len(stack) == 0 {
			return stack, fmt.Errorf("completion of %s without invocation", id)
		}
		if top := stack[len(stack)-1]; !top.Equals(id) {
			return stack[:len(stack)-1], fmt.Errorf("completion of %s while %s is executing", id, top)
		}
		return stack[:len(stack)-1], nil
	}
	// "consumed N of M compute units" and other progress lines.
	return stack, nil
}

// JoinErrors renders decode errors one per line.
func JoinErrors(errs []error) string {
	var b strings.Builder
	for _, err := range errs {
		b.WriteString(err.Error())
		b.WriteByte('\n')
	}
	return b.String()
}
