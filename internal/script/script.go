// Package script parses the engine's command script line grammar:
//
//	A <B|S> <OrderType> <Price> <Quantity> <OrderId>
//	M <OrderId> <B|S> <Price> <Quantity>
//	R|C <OrderId>
//
// The client does not execute scripts locally; it parses lines only to
// record the operator's intent in the order log before uploading the script
// verbatim to POST /api/script.
package script

import (
	"strconv"
	"strings"
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
)

// CommandKind is the operation a script line requests.
type CommandKind string

const (
	KindAdd    CommandKind = "Add"
	KindModify CommandKind = "Modify"
	KindCancel CommandKind = "Cancel"
)

// Command is one parsed script line.
type Command struct {
	Kind      CommandKind
	OrderID   string
	Side      domain.OrderSide
	OrderType domain.OrderType
	Price     float64
	Quantity  int64
}

// ParseLine parses a single script line. Blank lines and lines that do not
// match the grammar return ok=false; the caller skips them, as the engine
// itself ignores unknown commands.
func ParseLine(line string) (Command, bool) {
	tokens := strings.Fields(strings.TrimSpace(line))
	if len(tokens) == 0 {
		return Command{}, false
	}
	switch strings.ToUpper(tokens[0]) {
	case "A":
		if len(tokens) < 6 {
			return Command{}, false
		}
		price, perr := strconv.ParseFloat(tokens[3], 64)
		qty, qerr := strconv.ParseInt(tokens[4], 10, 64)
		if perr != nil || qerr != nil {
			return Command{}, false
		}
		return Command{
			Kind:      KindAdd,
			Side:      sideFor(tokens[1]),
			OrderType: domain.OrderType(strings.ToUpper(tokens[2])),
			Price:     price,
			Quantity:  qty,
			OrderID:   tokens[5],
		}, true
	case "M":
		if len(tokens) < 5 {
			return Command{}, false
		}
		price, perr := strconv.ParseFloat(tokens[3], 64)
		qty, qerr := strconv.ParseInt(tokens[4], 10, 64)
		if perr != nil || qerr != nil {
			return Command{}, false
		}
		return Command{
			Kind:     KindModify,
			OrderID:  tokens[1],
			Side:     sideFor(tokens[2]),
			Price:    price,
			Quantity: qty,
		}, true
	case "R", "C":
		if len(tokens) < 2 {
			return Command{}, false
		}
		return Command{Kind: KindCancel, OrderID: tokens[1]}, true
	default:
		return Command{}, false
	}
}

// Events maps the parseable lines of a script to order-log entries stamped
// with now. Unparseable lines contribute nothing.
func Events(lines []string, now time.Time) []domain.OrderEvent {
	var events []domain.OrderEvent
	for _, line := range lines {
		cmd, ok := ParseLine(line)
		if !ok {
			continue
		}
		ev := domain.OrderEvent{
			Timestamp: now,
			Phase:     domain.PhaseScript,
			OrderID:   cmd.OrderID,
			Side:      cmd.Side,
			OrderType: cmd.OrderType,
			Quantity:  cmd.Quantity,
			Message:   string(cmd.Kind),
			Severity:  domain.SeverityInfo,
		}
		switch cmd.Kind {
		case KindAdd:
			price := cmd.Price
			ev.Price = &price
		case KindModify:
			price := cmd.Price
			ev.Price = &price
			ev.OrderType = "MODIFY"
		case KindCancel:
			ev.OrderType = "CANCEL"
		}
		events = append(events, ev)
	}
	return events
}

func sideFor(token string) domain.OrderSide {
	if strings.EqualFold(token, "B") {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}
