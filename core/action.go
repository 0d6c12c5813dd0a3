package core

import "context"

// Action is the unit of executable work. It takes no arguments besides the context
// and returns nothing; results are communicated by writing to state the action owns
// or by reading the item's Result after completion.
//
// The context is done when the dispatcher is stopping or, for operations, when the
// operation has been cancelled. Cancellation is advisory: the action is expected to
// check ctx.Done() at safe points and return early, it is never interrupted.
type Action func(ctx context.Context)

type queueKeyType struct{}

var queueKey queueKeyType

// CurrentQueue returns the Queue executing the calling action, or nil when the
// context does not belong to a running action.
func CurrentQueue(ctx context.Context) *Queue {
	if v := ctx.Value(queueKey); v != nil {
		return v.(*Queue)
	}
	return nil
}
