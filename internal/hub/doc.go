// Package hub fans published messages out to channel subscribers.
//
// Each subscriber owns a bounded queue. Publish never blocks: when a
// subscriber's queue is full the message is dropped for that subscriber and
// counted. Delivery is best effort and nothing is retained for channels
// without subscribers.
//
//	h := hub.New(64, logger)
//	sub := h.Subscribe("market")
//	defer h.Unsubscribe(sub)
//	for msg := range sub.C() {
//	    ...
//	}
package hub
