package memstrategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowWaitSetReusesReturnedScratch(t *testing.T) {
	d := NewDefault()
	sizes := WaitSetSizes{Subscriptions: 3, Services: 1, Clients: 1, Guards: 2}

	a := d.BorrowWaitSet(sizes)
	require.NotNil(t, a)
	assert.Empty(t, a.Subscriptions)
	assert.GreaterOrEqual(t, cap(a.Subscriptions), 3)
	d.ReturnWaitSet(a)

	b := d.BorrowWaitSet(sizes)
	assert.Same(t, a, b, "expected the returned wait-set to be handed out again")
}

func TestBorrowWaitSetIsPrivateUntilReturned(t *testing.T) {
	d := NewDefault()
	a := d.BorrowWaitSet(WaitSetSizes{Subscriptions: 1})
	b := d.BorrowWaitSet(WaitSetSizes{Subscriptions: 1})
	assert.NotSame(t, a, b, "two outstanding borrows must not share scratch")
	d.ReturnWaitSet(a)
	d.ReturnWaitSet(b)
}

func TestBorrowMessageSlotIsPrivatePerBorrower(t *testing.T) {
	d := NewDefault()

	a := d.BorrowMessageSlot(1)
	b := d.BorrowMessageSlot(1)
	require.NotSame(t, a, b, "two outstanding borrows for one subscription must not share a slot")

	*a = "first"
	*b = "second"
	assert.Equal(t, "first", *a, "concurrent borrowers must not clobber each other")

	d.ReturnMessageSlot(1, a)
	d.ReturnMessageSlot(1, b)
}

func TestReturnMessageSlotClearsAndRecycles(t *testing.T) {
	d := NewDefault()

	a := d.BorrowMessageSlot(7)
	*a = "payload"
	d.ReturnMessageSlot(7, a)

	b := d.BorrowMessageSlot(7)
	assert.Same(t, a, b, "returned slot should be handed out again")
	assert.Nil(t, *b, "recycled slot must come back empty")
}
