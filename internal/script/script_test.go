package script

import (
	"testing"
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
		ok   bool
	}{
		{
			name: "add buy limit",
			line: "A B LIMIT 100.5 25 42",
			want: Command{Kind: KindAdd, Side: domain.OrderSideBuy, OrderType: domain.OrderTypeLimit, Price: 100.5, Quantity: 25, OrderID: "42"},
			ok:   true,
		},
		{
			name: "add sell market lowercase code",
			line: "a S MARKET 0 10 7",
			want: Command{Kind: KindAdd, Side: domain.OrderSideSell, OrderType: domain.OrderTypeMarket, Price: 0, Quantity: 10, OrderID: "7"},
			ok:   true,
		},
		{
			name: "modify",
			line: "M 42 S 99 15",
			want: Command{Kind: KindModify, OrderID: "42", Side: domain.OrderSideSell, Price: 99, Quantity: 15},
			ok:   true,
		},
		{
			name: "cancel via R",
			line: "R 42",
			want: Command{Kind: KindCancel, OrderID: "42"},
			ok:   true,
		},
		{
			name: "cancel via C",
			line: "C 42",
			want: Command{Kind: KindCancel, OrderID: "42"},
			ok:   true,
		},
		{name: "blank", line: "   ", ok: false},
		{name: "unknown code", line: "X 1 2 3", ok: false},
		{name: "add missing tokens", line: "A B LIMIT 100", ok: false},
		{name: "add bad price", line: "A B LIMIT abc 25 42", ok: false},
		{name: "modify bad quantity", line: "M 42 S 99 x", ok: false},
		{name: "cancel missing id", line: "R", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestEventsSkipsUnparseableLines(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := Events([]string{
		"A B LIMIT 100 25 1",
		"not a command",
		"C 1",
	}, now)

	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Message != string(KindAdd) || events[0].Price == nil || *events[0].Price != 100 {
		t.Fatalf("add event = %+v", events[0])
	}
	if events[1].OrderType != "CANCEL" || events[1].OrderID != "1" {
		t.Fatalf("cancel event = %+v", events[1])
	}
	for _, ev := range events {
		if !ev.Timestamp.Equal(now) || ev.Phase != domain.PhaseScript {
			t.Fatalf("event not stamped correctly: %+v", ev)
		}
	}
}
