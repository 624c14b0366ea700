package inventory

import "github.com/angelmondragon/inventory-backoffice/pkg/enums"

var reservationTransitions = map[enums.ReservationStatus][]enums.ReservationStatus{
	enums.ReservationStatusReserved: {
		enums.ReservationStatusConfirmed,
		enums.ReservationStatusCancelled,
		enums.ReservationStatusExpired,
	},
}

// CanTransition reports whether a reservation may move from one status to another.
// Only reserved holds move; every other status is terminal.
func CanTransition(from, to enums.ReservationStatus) bool {
	for _, allowed := range reservationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
