package booking

import (
	"fmt"
)

// ServingUnit is the number of people one BBQ tier unit feeds.
const ServingUnit = 5

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}

	return (a + b - 1) / b
}

// bbqUnits prefers the caller's quantity and falls back to the serving units the party needs.
func bbqUnits(o BBQOption, party int) int {
	if o.Quantity > 0 {
		return o.Quantity
	}

	return ceilDiv(party, ServingUnit)
}

type breakdownBuilder struct {
	b PriceBreakdown
}

func (bb *breakdownBuilder) add(kind LineKind, label string, quantity int, unitPrice int64) {
	bb.b.Items = append(bb.b.Items, LineItem{
		Kind:      kind,
		Label:     label,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Amount:    unitPrice * int64(quantity),
	})
	bb.b.Total += unitPrice * int64(quantity)
}

func (bb *breakdownBuilder) onRequest(kind LineKind, label string) {
	//nolint:exhaustruct
	bb.b.Items = append(bb.b.Items, LineItem{Kind: kind, Label: label, Quantity: 1, PriceOnRequest: true})
}

// extraOccupancy is skipped for rates without a base capacity.
func (bb *breakdownBuilder) extraOccupancy(label string, party int, rate Rate) {
	extra := party - rate.BaseCapacity
	if rate.BaseCapacity <= 0 || extra <= 0 {
		return
	}

	bb.add(LineExtraOccupancy, label, extra, rate.ExtraPersonFee)
}

// ComputeTotal prices a structurally valid request against the rate table.
// A price missing from the table is a configuration fault and is returned as
// an error wrapping ErrRateTable, never priced as zero.
func ComputeTotal(req Request, rates RateTable) (PriceBreakdown, error) {
	var bb breakdownBuilder

	party := req.PartySize()

	if req.IsRoomBooking() {
		rate, ok := rates.Rooms[req.RoomType]
		if !ok {
			return PriceBreakdown{}, fmt.Errorf("room type %q: %w", req.RoomType, ErrRateTable)
		}

		bb.add(LineBaseStay, fmt.Sprintf("%s x %d nights", req.RoomType, req.Nights()), req.Nights(), rate.BasePrice)
		bb.extraOccupancy(fmt.Sprintf("%s extra guests", req.RoomType), party, rate)
	}

	for _, p := range req.Programs {
		rate, ok := rates.Programs[p.ProgramID]
		if !ok {
			return PriceBreakdown{}, fmt.Errorf("program %q: %w", p.ProgramID, ErrRateTable)
		}

		bb.add(LineProgram, p.ProgramID, p.RequestedQuantity(), rate.BasePrice)
		bb.extraOccupancy(fmt.Sprintf("%s extra participants", p.ProgramID), party, rate)
	}

	// Add-ons are priced by kind in a fixed order regardless of selection order.
	for _, kind := range []OptionKind{OptionBBQ, OptionBreakfast, OptionShuttle} {
		for _, opt := range req.Options {
			if opt.Kind() != kind {
				continue
			}

			if err := priceOption(&bb, opt, party, rates); err != nil {
				return PriceBreakdown{}, err
			}
		}
	}

	if bb.b.Items == nil {
		bb.b.Items = []LineItem{}
	}

	return bb.b, nil
}

func priceOption(bb *breakdownBuilder, opt Option, party int, rates RateTable) error {
	switch o := opt.(type) {
	case BBQOption:
		price, ok := rates.BBQTiers[o.Tier]
		if !ok {
			return fmt.Errorf("bbq tier %q: %w", o.Tier, ErrRateTable)
		}

		bb.add(LineBBQ, fmt.Sprintf("bbq %s", o.Tier), bbqUnits(o, party), price)
	case BreakfastOption:
		bb.add(LineBreakfast, "breakfast", party, rates.BreakfastUnitPrice)
	case ShuttleOption:
		if rates.Shuttle.PriceOnRequest {
			bb.onRequest(LineShuttle, "shuttle (price on request)")

			return nil
		}

		bb.add(LineShuttle, "shuttle", 1, rates.Shuttle.Fee)
	case UnknownOption:
		// Validation already warned about it.
	}

	return nil
}
