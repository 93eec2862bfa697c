package booking

import (
	"encoding/json"
	"fmt"
)

type OptionKind string

const (
	OptionBBQ       OptionKind = "bbq"
	OptionBreakfast OptionKind = "breakfast"
	OptionShuttle   OptionKind = "shuttle"
)

// Option is one add-on selection. The set of implementations is closed:
// BBQOption, BreakfastOption, ShuttleOption and UnknownOption.
type Option interface {
	Kind() OptionKind
	option()
}

// BBQOption selects a grill tier. A zero Quantity means "as many 5-person
// serving units as the party needs".
type BBQOption struct {
	Tier     string
	Quantity int
}

type BreakfastOption struct{}

type ShuttleOption struct{}

// UnknownOption keeps an unrecognized tag so it can be reported instead of dropped.
type UnknownOption struct {
	Type string
}

func (BBQOption) Kind() OptionKind       { return OptionBBQ }
func (BreakfastOption) Kind() OptionKind { return OptionBreakfast }
func (ShuttleOption) Kind() OptionKind   { return OptionShuttle }
func (u UnknownOption) Kind() OptionKind { return OptionKind(u.Type) }

func (BBQOption) option()       {}
func (BreakfastOption) option() {}
func (ShuttleOption) option()   {}
func (UnknownOption) option()   {}

type Options []Option

type optionWire struct {
	Type     string `json:"type"`
	Tier     string `json:"tier,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

func (o Options) MarshalJSON() ([]byte, error) {
	wire := make([]optionWire, 0, len(o))

	for _, opt := range o {
		switch v := opt.(type) {
		case BBQOption:
			wire = append(wire, optionWire{Type: string(OptionBBQ), Tier: v.Tier, Quantity: v.Quantity})
		case BreakfastOption:
			wire = append(wire, optionWire{Type: string(OptionBreakfast)})
		case ShuttleOption:
			wire = append(wire, optionWire{Type: string(OptionShuttle)})
		case UnknownOption:
			wire = append(wire, optionWire{Type: v.Type})
		default:
			return nil, fmt.Errorf("marshal option of type %T: %w", opt, ErrLogic)
		}
	}

	return json.Marshal(wire)
}

func (o *Options) UnmarshalJSON(data []byte) error {
	var wire []optionWire

	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}

	opts := make(Options, 0, len(wire))

	for _, w := range wire {
		switch OptionKind(w.Type) {
		case OptionBBQ:
			opts = append(opts, BBQOption{Tier: w.Tier, Quantity: w.Quantity})
		case OptionBreakfast:
			opts = append(opts, BreakfastOption{})
		case OptionShuttle:
			opts = append(opts, ShuttleOption{})
		default:
			opts = append(opts, UnknownOption{Type: w.Type})
		}
	}

	*o = opts

	return nil
}
