package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

func event(jobID uuid.UUID, stage domain.ProgressStage) domain.ProgressEvent {
	return domain.ProgressEvent{JobID: jobID, Stage: stage, EmittedAt: time.Now()}
}

func TestPublish_DeliversToSubscribers(t *testing.T) {
	h := NewHub()
	jobID := uuid.New()

	ch, cancel := h.Subscribe(jobID)
	defer cancel()

	h.Publish(event(jobID, domain.StageScanning))

	select {
	case ev := <-ch:
		assert.Equal(t, domain.StageScanning, ev.Stage)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestPublish_ScopedToJob(t *testing.T) {
	h := NewHub()
	a, b := uuid.New(), uuid.New()

	chA, cancelA := h.Subscribe(a)
	defer cancelA()

	h.Publish(event(b, domain.StageScanning))

	select {
	case <-chA:
		t.Fatal("event for another job leaked")
	default:
	}
}

func TestPublish_TerminalClosesStream(t *testing.T) {
	h := NewHub()
	jobID := uuid.New()

	ch, cancel := h.Subscribe(jobID)
	defer cancel()

	h.Publish(event(jobID, domain.StageDone))

	ev, open := <-ch
	require.True(t, open)
	assert.Equal(t, domain.StageDone, ev.Stage)

	_, open = <-ch
	assert.False(t, open, "terminal stage ends the stream")

	// Publishing after the terminal stage reaches nobody.
	h.Publish(event(jobID, domain.StageError))
}

func TestCancel_Idempotent(t *testing.T) {
	h := NewHub()
	jobID := uuid.New()

	_, cancel := h.Subscribe(jobID)
	cancel()
	cancel()

	// The job's subscriber set is gone; publish is a no-op.
	h.Publish(event(jobID, domain.StageScanning))
}

func TestCancel_AfterTerminalPublish(t *testing.T) {
	h := NewHub()
	jobID := uuid.New()

	_, cancel := h.Subscribe(jobID)
	h.Publish(event(jobID, domain.StageDone))
	cancel()
}

func TestPublish_SlowSubscriberDropsEvents(t *testing.T) {
	h := NewHub()
	jobID := uuid.New()

	ch, cancel := h.Subscribe(jobID)
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(event(jobID, domain.StageScanning))
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received, "overflow is dropped, never blocks the publisher")
}
