package reservation

import "fmt"

const (
	// stock:avail:{productID} -> integer units offered for sale, synced
	// from the ledger with a short TTL.
	keyAvail = "stock:avail:%s"

	// stock:hold:{orderID} -> hash productID -> qty. Correlates in-flight
	// reservations with their order across process crashes; expires with
	// the hold TTL.
	keyHold = "stock:hold:%s"
)

func availKey(productID string) string { return fmt.Sprintf(keyAvail, productID) }
func holdKey(orderID string) string    { return fmt.Sprintf(keyHold, orderID) }
