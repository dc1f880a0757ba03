package syncmgr

// waiter is a suspended caller identified by its (node, thread) pair, the
// only state the Sync Manager keeps about it (SPEC_FULL.md §3, §9 -- this
// is a value-typed relation, not a back-pointer).
type waiter struct {
	node   uint32
	thread uint32
}

// primitive is the tagged-variant interface every sync object satisfies.
// Go expresses the source's union-plus-tag as three concrete types behind
// this interface instead (SPEC_FULL.md §9).
type primitive interface {
	kind() string
}

// barrier is a reusable rendezvous: threshold participants arrive, all are
// released, and the counter resets for the next round.
type barrier struct {
	threshold int32
	count     int32
	waitlist  []waiter
}

func (*barrier) kind() string { return "barrier" }

// semaphore is a counting semaphore; a negative value is the (negated)
// queue depth of blocked decrementers.
type semaphore struct {
	initial   int32
	value     int32
	waitqueue []waiter
}

func (*semaphore) kind() string { return "semaphore" }

// event is an auto- or manual-reset binary signal.
type event struct {
	autoReset bool
	signaled  bool
	waitqueue []waiter
}

func (*event) kind() string { return "event" }
