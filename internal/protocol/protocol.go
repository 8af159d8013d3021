// Package protocol defines the commands a client sends to the running
// glint instance and their CBOR encoding.
//
// A connection carries exactly one CBOR map and no reply:
//
//	{"action": "increase", "delta": 5}
//	{"action": "decrease", "delta": 5}
//	{"action": "set", "value": 40}
package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/hoppxi/glint/internal/brightness"
)

// MaxMessageSize bounds a single command body. The largest valid
// command is well under 32 bytes.
const MaxMessageSize = 64

var (
	ErrUsage     = errors.New("usage: glint [inc|dec|set] <0-100>")
	ErrMalformed = errors.New("malformed command")
)

type Kind uint8

const (
	Increase Kind = iota + 1
	Decrease
	SetAbsolute
)

func (k Kind) String() string {
	switch k {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	case SetAbsolute:
		return "set"
	}
	return "unknown"
}

// Command is one brightness request. Amount is the delta for
// Increase/Decrease and the target for SetAbsolute.
type Command struct {
	Kind   Kind
	Amount uint8
}

func (c Command) String() string {
	return c.Kind.String() + " " + strconv.Itoa(int(c.Amount))
}

// Apply performs the command against cell and returns the new value.
// Out of range amounts are clamped here regardless of client checks.
func (c Command) Apply(cell *brightness.Cell) (brightness.Percent, error) {
	switch c.Kind {
	case Increase:
		return cell.Replace(func(b brightness.Percent) int {
			return int(brightness.Apply(b, int(c.Amount)))
		}), nil
	case Decrease:
		return cell.Replace(func(b brightness.Percent) int {
			return int(brightness.Apply(b, -int(c.Amount)))
		}), nil
	case SetAbsolute:
		return cell.Set(int(c.Amount)), nil
	}
	return cell.Get(), fmt.Errorf("%w: unknown kind %d", ErrMalformed, c.Kind)
}

// ParseArgs turns CLI arguments into a Command. Amounts outside
// [0,100] are rejected before anything is sent.
func ParseArgs(args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, ErrUsage
	}

	var kind Kind
	switch args[0] {
	case "inc":
		kind = Increase
	case "dec":
		kind = Decrease
	case "set":
		kind = SetAbsolute
	default:
		return Command{}, fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}

	amount, err := ParseAmount(args[1])
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Amount: amount}, nil
}

// ParseAmount accepts an integer in [0,100], with an optional trailing %.
func ParseAmount(s string) (uint8, error) {
	if n := len(s); n > 0 && s[n-1] == '%' {
		s = s[:n-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 100 {
		return 0, fmt.Errorf("amount %q must be an integer in 0-100: %w", s, ErrUsage)
	}
	return uint8(n), nil
}

// wire is the encoded form. Pointers distinguish an absent field from
// a zero amount.
type wire struct {
	Action string `cbor:"action"`
	Delta  *uint8 `cbor:"delta,omitempty"`
	Value  *uint8 `cbor:"value,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
		IndefLength:       cbor.IndefLengthForbidden,
		MaxNestedLevels:   4,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

func (c Command) Marshal() ([]byte, error) {
	amount := c.Amount
	w := wire{Action: c.Kind.String()}
	switch c.Kind {
	case Increase, Decrease:
		w.Delta = &amount
	case SetAbsolute:
		w.Value = &amount
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, c.Kind)
	}
	return encMode.Marshal(w)
}

// Unmarshal decodes exactly one command from data.
func Unmarshal(data []byte) (Command, error) {
	var w wire
	if err := decMode.Unmarshal(data, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch w.Action {
	case "increase", "decrease":
		if w.Delta == nil || w.Value != nil {
			return Command{}, fmt.Errorf("%w: %s takes only a delta", ErrMalformed, w.Action)
		}
		kind := Increase
		if w.Action == "decrease" {
			kind = Decrease
		}
		return Command{Kind: kind, Amount: *w.Delta}, nil
	case "set":
		if w.Value == nil || w.Delta != nil {
			return Command{}, fmt.Errorf("%w: set takes only a value", ErrMalformed)
		}
		return Command{Kind: SetAbsolute, Amount: *w.Value}, nil
	}
	return Command{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, w.Action)
}

// Write sends c as a single message.
func Write(w io.Writer, c Command) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Read consumes r until EOF and decodes the body. Bodies over
// MaxMessageSize are rejected without being decoded.
func Read(r io.Reader) (Command, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return Command{}, err
	}
	if len(data) > MaxMessageSize {
		return Command{}, fmt.Errorf("%w: message exceeds %d bytes", ErrMalformed, MaxMessageSize)
	}
	if len(data) == 0 {
		return Command{}, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	return Unmarshal(data)
}
