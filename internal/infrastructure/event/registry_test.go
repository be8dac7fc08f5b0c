package event

import (
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	created := &recordingHandler{}
	both := &recordingHandler{}
	wildcard := &recordingHandler{}

	r.Register(created, finance.EventTypeAllocationCreated)
	r.Register(created, finance.EventTypeAllocationCreated)
	r.Register(both, finance.EventTypeAllocationCreated, finance.EventTypeAllocationRemoved)
	r.Register(wildcard)

	handlers := r.GetHandlers(finance.EventTypeAllocationCreated)
	assert.Len(t, handlers, 3, "duplicate registration is ignored")
	assert.Same(t, wildcard, handlers[2], "wildcard handlers come last")
	assert.Len(t, r.GetHandlers(finance.EventTypeAllocationRemoved), 2)
	assert.Len(t, r.GetHandlers("Unknown"), 1)
	assert.Equal(t, 3, r.Count())

	r.Unregister(both)
	assert.Len(t, r.GetHandlers(finance.EventTypeAllocationRemoved), 1)
	assert.Equal(t, 2, r.Count())

	r.Unregister(wildcard)
	assert.Empty(t, r.GetHandlers("Unknown"))
}
