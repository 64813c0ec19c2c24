package autobot

import (
	"testing"
)

func TestOrder_TransitionTo(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderPending, OrderOpen, true},
		{OrderPending, OrderFailed, true},
		{OrderOpen, OrderClosed, true},
		{OrderOpen, OrderCancelled, true},
		{OrderPending, OrderClosed, false},
		{OrderOpen, OrderPending, false},
		{OrderOpen, OrderFailed, false},
		{OrderClosed, OrderOpen, false},
		{OrderCancelled, OrderOpen, false},
		{OrderFailed, OrderOpen, false},
		{OrderFailed, OrderPending, false},
	}

	for _, test := range tests {
		order := &Order{ID: testID("ord-1"), Status: test.from}

		err := order.TransitionTo(test.to)

		if test.allowed {
			if err != nil {
				t.Errorf(
					"unexpected error for [%v] -> [%v]: [%v]",
					test.from,
					test.to,
					err,
				)
			}
			if order.Status != test.to {
				t.Errorf(
					"unexpected status after [%v] -> [%v]: [%v]",
					test.from,
					test.to,
					order.Status,
				)
			}
		} else {
			if err == nil {
				t.Errorf(
					"expected an error for [%v] -> [%v]",
					test.from,
					test.to,
				)
			}
			if order.Status != test.from {
				t.Errorf(
					"denied transition [%v] -> [%v] changed the status to [%v]",
					test.from,
					test.to,
					order.Status,
				)
			}
		}
	}
}

func TestOrderSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Errorf("expected the opposite of BUY to be SELL")
	}
	if SideSell.Opposite() != SideBuy {
		t.Errorf("expected the opposite of SELL to be BUY")
	}
}

func TestParseOrderSide(t *testing.T) {
	for _, side := range []OrderSide{SideBuy, SideSell} {
		parsed, err := ParseOrderSide(side.String())
		if err != nil {
			t.Fatalf("could not parse side [%v]: [%v]", side, err)
		}

		if parsed != side {
			t.Errorf(
				"unexpected parsed side\nexpected: [%v]\nactual:   [%v]",
				side,
				parsed,
			)
		}
	}

	if _, err := ParseOrderSide("HOLD"); err == nil {
		t.Errorf("expected a parse error")
	}
}

func TestParseOrderStatus(t *testing.T) {
	statuses := []OrderStatus{
		OrderPending,
		OrderOpen,
		OrderClosed,
		OrderCancelled,
		OrderFailed,
	}

	for _, status := range statuses {
		parsed, err := ParseOrderStatus(status.String())
		if err != nil {
			t.Fatalf("could not parse status [%v]: [%v]", status, err)
		}

		if parsed != status {
			t.Errorf(
				"unexpected parsed status\nexpected: [%v]\nactual:   [%v]",
				status,
				parsed,
			)
		}
	}

	if _, err := ParseOrderStatus("UNKNOWN"); err == nil {
		t.Errorf("expected a parse error")
	}
}
