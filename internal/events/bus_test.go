package events

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	b := NewBus(quietLogger())
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Emit(TypeTradeDetected, "payload")

	for _, sub := range []<-chan Event{s1, s2} {
		select {
		case e := <-sub:
			assert.Equal(t, TypeTradeDetected, e.Type)
			assert.Equal(t, "payload", e.Data)
			assert.NotEmpty(t, e.ID)
			assert.False(t, e.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	b := NewBus(quietLogger())
	defer b.Close()

	// A subscriber that never drains.
	b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultCapacity*3; i++ {
			b.Emit(TypeCopyComplete, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBus_CloseShutsSubscribers(t *testing.T) {
	b := NewBus(quietLogger())
	sub := b.Subscribe()
	b.Close()

	_, open := <-sub
	assert.False(t, open)

	// Publishing after close is a no-op, not a panic.
	b.Emit(TypeCopyFailed, nil)

	late := b.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscribing after close returns a closed channel")
}

func TestEventIDsUnique(t *testing.T) {
	a := New(TypeExitTriggered, nil)
	bEvt := New(TypeExitTriggered, nil)
	require.NotEqual(t, a.ID, bEvt.ID)
}
