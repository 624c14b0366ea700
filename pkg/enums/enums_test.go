package enums

import "testing"

func TestReservationStatusTerminal(t *testing.T) {
	cases := map[ReservationStatus]bool{
		ReservationStatusReserved:  false,
		ReservationStatusConfirmed: true,
		ReservationStatusCancelled: true,
		ReservationStatusExpired:   true,
		ReservationStatus("bogus"): false,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%q terminal = %v, want %v", status, got, want)
		}
	}
}

func TestParseReservationStatus(t *testing.T) {
	if _, err := ParseReservationStatus("reserved"); err != nil {
		t.Fatalf("parse reserved: %v", err)
	}
	if _, err := ParseReservationStatus("held"); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestParseOutboxEventType(t *testing.T) {
	for _, raw := range []string{"stock_reserved", "low_stock_detected", "stock_item_deactivated"} {
		if _, err := ParseOutboxEventType(raw); err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event type error")
	}
	if !AggregateStockItem.IsValid() {
		t.Fatal("stock_item aggregate should be valid")
	}
}
