package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher captures every dispatched message on a channel.
type recordingDispatcher struct {
	messages chan *Message
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{messages: make(chan *Message, 32)}
}

func (d *recordingDispatcher) Dispatch(msg *Message) error {
	d.messages <- msg
	return nil
}

// collect drains messages until a terminal task outcome arrives.
func (d *recordingDispatcher) collect(t *testing.T) []*Message {
	t.Helper()
	var collected []*Message
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-d.messages:
			collected = append(collected, msg)
			if msg.Type == MessageTaskComplete || msg.Type == MessageTaskError {
				return collected
			}
		case <-deadline:
			t.Fatalf("timed out waiting for task outcome, got %d messages", len(collected))
		}
	}
}

func startAgent(t *testing.T, a *BaseAgent) {
	t.Helper()
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop() })
}

func taskMessage(destination, taskID, task string, params map[string]any) *Message {
	return NewMessage(OrchestratorID, destination, MessageTask, map[string]any{
		"task_id": taskID,
		"task":    task,
		"params":  params,
	})
}

func TestBaseAgent_TaskCompleteFlow(t *testing.T) {
	d := newRecordingDispatcher()
	a := NewBaseAgent("worker", d)
	a.RegisterTask("echo", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"echo": params["value"]}, nil
	})
	startAgent(t, a)

	require.NoError(t, a.Deliver(taskMessage("worker", "t-1", "echo", map[string]any{"value": "hi"})))
	messages := d.collect(t)

	require.Len(t, messages, 2)
	assert.Equal(t, MessageTaskResponse, messages[0].Type)
	assert.Equal(t, "processing", messages[0].Payload["status"])
	assert.Equal(t, "t-1", messages[0].TaskID())

	complete := messages[1]
	assert.Equal(t, MessageTaskComplete, complete.Type)
	assert.Equal(t, "t-1", complete.TaskID())
	assert.Equal(t, OrchestratorID, complete.Destination)
	result := complete.Payload["result"].(map[string]any)
	assert.Equal(t, "hi", result["echo"])
}

func TestBaseAgent_HandlerErrorYieldsSingleTaskError(t *testing.T) {
	d := newRecordingDispatcher()
	a := NewBaseAgent("worker", d)
	a.RegisterTask("fail", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	startAgent(t, a)

	require.NoError(t, a.Deliver(taskMessage("worker", "t-err", "fail", nil)))
	messages := d.collect(t)

	errorCount := 0
	for _, msg := range messages {
		if msg.Type == MessageTaskError {
			errorCount++
			assert.Equal(t, "t-err", msg.TaskID())
			assert.Equal(t, "fail", msg.Payload["task"])
			assert.Contains(t, msg.Payload["error"], "boom")
		}
	}
	assert.Equal(t, 1, errorCount, "exactly one task_error per failed task")

	// Nothing further arrives.
	select {
	case msg := <-d.messages:
		t.Fatalf("unexpected extra message: %v", msg.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBaseAgent_HandlerPanicContained(t *testing.T) {
	d := newRecordingDispatcher()
	a := NewBaseAgent("worker", d)
	a.RegisterTask("explode", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		panic("unexpected state")
	})
	startAgent(t, a)

	require.NoError(t, a.Deliver(taskMessage("worker", "t-panic", "explode", nil)))
	messages := d.collect(t)

	last := messages[len(messages)-1]
	assert.Equal(t, MessageTaskError, last.Type)
	assert.Equal(t, "t-panic", last.TaskID())
	assert.Contains(t, last.Payload["error"], "handler panic")
}

func TestBaseAgent_UnsupportedTask(t *testing.T) {
	d := newRecordingDispatcher()
	a := NewBaseAgent("worker", d)
	startAgent(t, a)

	require.NoError(t, a.Deliver(taskMessage("worker", "t-x", "no_such_task", nil)))
	messages := d.collect(t)

	last := messages[len(messages)-1]
	assert.Equal(t, MessageTaskError, last.Type)
	assert.Contains(t, last.Payload["error"], "unsupported task")
}

func TestBaseAgent_ProcessesInReceiveOrder(t *testing.T) {
	d := newRecordingDispatcher()
	a := NewBaseAgent("worker", d)
	a.RegisterTask("echo", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"value": params["value"]}, nil
	})
	startAgent(t, a)

	for i, value := range []string{"first", "second", "third"} {
		require.NoError(t, a.Deliver(taskMessage("worker", string(rune('a'+i)), "echo", map[string]any{"value": value})))
	}

	var completions []string
	deadline := time.After(2 * time.Second)
	for len(completions) < 3 {
		select {
		case msg := <-d.messages:
			if msg.Type == MessageTaskComplete {
				result := msg.Payload["result"].(map[string]any)
				completions = append(completions, result["value"].(string))
			}
		case <-deadline:
			t.Fatal("timed out waiting for completions")
		}
	}
	assert.Equal(t, []string{"first", "second", "third"}, completions)
}

func TestBaseAgent_DeliverToStoppedAgent(t *testing.T) {
	a := NewBaseAgent("worker", newRecordingDispatcher())
	err := a.Deliver(taskMessage("worker", "t", "echo", nil))
	require.Error(t, err)

	var ae *AgentError
	assert.ErrorAs(t, err, &ae)
}

func TestBaseAgent_IgnoresNonTaskMessages(t *testing.T) {
	d := newRecordingDispatcher()
	a := NewBaseAgent("worker", d)
	startAgent(t, a)

	require.NoError(t, a.Deliver(NewMessage("other", "worker", MessageAgentStatus, nil)))

	select {
	case msg := <-d.messages:
		t.Fatalf("unexpected reply to status message: %v", msg.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMessageAccessors(t *testing.T) {
	msg := taskMessage("worker", "id-1", "verb", map[string]any{"k": "v"})
	assert.Equal(t, "id-1", msg.TaskID())
	assert.Equal(t, "verb", msg.Task())
	assert.Equal(t, "v", msg.Params()["k"])
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	empty := &Message{}
	assert.Empty(t, empty.TaskID())
	assert.Empty(t, empty.Task())
	assert.NotNil(t, empty.Params())
}
