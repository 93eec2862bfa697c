package booking

import (
	"fmt"
	"slices"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Violation struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

type Violations []Violation

// Blocking reports whether any violation must stop the request.
func (vs Violations) Blocking() bool {
	return slices.ContainsFunc(vs, func(v Violation) bool { return v.Severity == SeverityError })
}

func (vs Violations) Warnings() Violations {
	return vs.withSeverity(SeverityWarning)
}

// Errors returns the violations that block the request.
func (vs Violations) Errors() Violations {
	return vs.withSeverity(SeverityError)
}

func (vs Violations) withSeverity(severity Severity) Violations {
	var out Violations

	for _, v := range vs {
		if v.Severity == severity {
			out = append(out, v)
		}
	}

	return out
}

func (vs Violations) Messages() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Message)
	}

	return out
}

func (vs *Violations) add(field, msg string) {
	*vs = append(*vs, Violation{Field: field, Message: msg, Severity: SeverityError})
}

func (vs *Violations) warn(field, msg string) {
	*vs = append(*vs, Violation{Field: field, Message: msg, Severity: SeverityWarning})
}

// Validate runs the structural checks on a request. It does no I/O and reports
// every problem found rather than stopping at the first one.
func Validate(req Request, limits Limits) Violations {
	var vs Violations

	if req.IsRoomBooking() && !req.CheckOut.After(req.CheckIn) {
		vs.add("check_out", "checkout must be after checkin")
	}

	if req.Adults < 1 {
		vs.add("adults", "at least one adult required")
	}

	if req.Children < 0 {
		vs.add("children", "children count cannot be negative")
	}

	validateOptions(&vs, req.Options, req.PartySize(), limits)

	if !req.IsRoomBooking() && len(req.Programs) == 0 {
		vs.add("room_type", "select a room or at least one program")
	}

	for i, p := range req.Programs {
		field := fmt.Sprintf("programs[%d]", i)

		if p.ProgramID == "" {
			vs.add(field+".program_id", "program id is required")
		}

		if p.Date.IsZero() {
			vs.add(field+".date", "program date is required")
		}

		if p.Quantity < 0 {
			vs.add(field+".quantity", "program quantity cannot be negative")
		}

		if limits.MaxProgramQuantity > 0 && p.Quantity > limits.MaxProgramQuantity {
			vs.add(field+".quantity", fmt.Sprintf(
				"program quantity %d exceeds maximum of %d", p.Quantity, limits.MaxProgramQuantity,
			))
		}
	}

	return vs
}

func validateOptions(vs *Violations, opts Options, party int, limits Limits) {
	seen := make(map[OptionKind]bool, len(opts))

	for i, opt := range opts {
		field := fmt.Sprintf("options[%d]", i)

		switch o := opt.(type) {
		case BBQOption:
			if len(limits.BBQTiers) > 0 && !slices.Contains(limits.BBQTiers, o.Tier) {
				vs.add(field+".tier", fmt.Sprintf("unknown bbq tier %q", o.Tier))
			}

			if o.Quantity < 0 {
				vs.add(field+".quantity", "bbq quantity cannot be negative")
			} else {
				checkQuantity(vs, field, OptionBBQ, bbqUnits(o, party), limits)
			}
		case BreakfastOption, ShuttleOption:
		case UnknownOption:
			vs.warn(field+".type", fmt.Sprintf("unrecognized option %q ignored", o.Type))

			continue
		}

		if seen[opt.Kind()] {
			vs.add(field+".type", fmt.Sprintf("option %q selected more than once", opt.Kind()))
		}

		seen[opt.Kind()] = true
	}
}

func checkQuantity(vs *Violations, field string, kind OptionKind, quantity int, limits Limits) {
	if limit, ok := limits.MaxQuantity[kind]; ok && limit > 0 && quantity > limit {
		vs.add(field+".quantity", fmt.Sprintf("%s quantity %d exceeds maximum of %d", kind, quantity, limit))
	}
}
