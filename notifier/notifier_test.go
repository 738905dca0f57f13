package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyAllCoalesces(t *testing.T) {
	n := New()
	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	n.NotifyAll()
	n.NotifyAll()

	assert.Len(t, ch, 1)
	<-ch
	assert.Len(t, ch, 0)
}

func TestUnsubscribeTwice(t *testing.T) {
	n := New()
	ch := n.Subscribe()
	assert.Equal(t, 1, n.Len())

	n.Unsubscribe(ch)
	n.Unsubscribe(ch)
	assert.Equal(t, 0, n.Len())

	_, open := <-ch
	assert.False(t, open)

	// notifying with no subscribers must not block
	n.NotifyAll()
}
