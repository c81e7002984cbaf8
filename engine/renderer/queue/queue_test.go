package queue

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instructions(ops []backend.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		if op.Note != "" {
			out = append(out, "note:"+op.Note)
			continue
		}
		out = append(out, op.Command.Instruction.String())
	}
	return out
}

func TestReserveFillFlushMatchesInlineEmission(t *testing.T) {
	inlineDev := backend.NewRecordingDevice(64, 64)
	inline := NewImmediate(inlineDev)
	inline.QueueCommand(command.NewSetPrimitiveTopology(command.TopologyTriangleList))
	inline.QueueCommand(command.NewSetInstanceBuffer(9, 1))
	inline.QueueCommand(command.NewDrawIndexedInstanced(0, 0, 36, 0, 4))
	require.NoError(t, inline.Flush())

	reservedDev := backend.NewRecordingDevice(64, 64)
	reserved := NewImmediate(reservedDev)
	reserved.QueueCommand(command.NewSetPrimitiveTopology(command.TopologyTriangleList))
	slot := reserved.ReserveSlot()
	reserved.QueueCommand(command.NewDrawIndexedInstanced(0, 0, 36, 0, 4))
	reserved.QueueCommandAt(slot, command.NewSetInstanceBuffer(9, 1))
	require.NoError(t, reserved.Flush())

	assert.Equal(t, inlineDev.Operations(), reservedDev.Operations())
}

func TestReservedSlotPlaceholder(t *testing.T) {
	q := NewImmediate(backend.NewRecordingDevice(64, 64))
	slot := q.ReserveSlot()
	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, command.NewNoOperation(command.UnfilledSlotMarker), items[slot].Command)
}

func TestReservedSlotMisuse(t *testing.T) {
	q := NewImmediate(backend.NewRecordingDevice(64, 64))

	assert.PanicsWithValue(t, "queue: slot 0 out of range (0 commands)", func() {
		q.QueueCommandAt(0, command.NewPresent())
	})

	q.QueueCommand(command.NewPresent())
	assert.PanicsWithValue(t, "queue: slot 0 was not reserved", func() {
		q.QueueCommandAt(0, command.NewPresent())
	})

	slot := q.ReserveSlot()
	assert.PanicsWithValue(t, "queue: flush with 1 unfilled reserved slots", func() {
		_ = q.Flush()
	})

	// The panicking flush still reset the queue.
	assert.Equal(t, 0, q.Len())

	slot = q.ReserveSlot()
	q.QueueCommandAt(slot, command.NewPresent())
	assert.PanicsWithValue(t, "queue: slot 0 already filled", func() {
		q.QueueCommandAt(slot, command.NewPresent())
	})
}

func TestImmediateFlushRunsActionsBetweenSegments(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	q := NewImmediate(dev)

	q.QueueAction(func() { dev.Note("first") })
	q.QueueCommand(command.NewDraw(0, 3))
	q.QueueAction(func() { dev.Note("middle") })
	q.QueueAction(func() { dev.Note("middle-2") })
	q.QueueCommand(command.NewDraw(3, 3))
	q.QueueAction(func() { dev.Note("last") })

	items := q.Items()
	require.Len(t, items, 6)
	assert.True(t, items[0].IsAction())
	assert.False(t, items[1].IsAction())
	assert.True(t, items[5].IsAction())

	require.NoError(t, q.Flush())
	assert.Equal(t,
		[]string{"note:first", "Draw", "note:middle", "note:middle-2", "Draw", "note:last"},
		instructions(dev.Operations()))
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Items())
}

func TestDeferredFlushReplaysThroughSubmitter(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	submitter := NewSubmitter(dev, 4, nil)
	ctx, err := dev.NewDeferredContext()
	require.NoError(t, err)
	q := NewDeferred(ctx, 1, submitter)
	assert.True(t, q.Deferred())

	q.QueueCommand(command.NewDraw(0, 3))
	q.QueueAction(func() { dev.Note("action") })
	q.QueueCommand(command.NewDraw(3, 3))
	require.NoError(t, q.Flush())

	// The action runs between the two recorded segments; the draws execute only when the master drains.
	assert.Equal(t, []string{"Draw", "note:action", "Draw"}, instructions(dev.Recorded()))
	assert.Equal(t, []string{"note:action"}, instructions(dev.Operations()))
	assert.Equal(t, 1, submitter.Pending())

	require.NoError(t, submitter.Drain())
	assert.Equal(t, []string{"note:action", "Draw", "Draw"}, instructions(dev.Operations()))
	assert.Equal(t, 0, submitter.Pending())

	// Empty flushes send nothing.
	require.NoError(t, q.Flush())
	assert.Equal(t, 0, submitter.Pending())
}

func TestDeferredReplayOrderFollowsArrival(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	submitter := NewSubmitter(dev, 4, nil)

	queues := make([]Queue, 3)
	for i := range queues {
		ctx, err := dev.NewDeferredContext()
		require.NoError(t, err)
		queues[i] = NewDeferred(ctx, i+1, submitter)
	}
	for _, i := range []int{2, 0, 1} {
		queues[i].QueueCommand(command.NewDraw(uint32(i), 1))
		require.NoError(t, queues[i].Flush())
	}
	require.NoError(t, submitter.Drain())

	draws := dev.Commands(command.Draw)
	require.Len(t, draws, 3)
	assert.Equal(t, []int{3, 1, 2}, []int{draws[0].Context, draws[1].Context, draws[2].Context})
}

func TestSubmitterBacklogFull(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	submitter := NewSubmitter(dev, 1, nil)
	ctx, err := dev.NewDeferredContext()
	require.NoError(t, err)
	q := NewDeferred(ctx, 1, submitter)

	q.QueueCommand(command.NewDraw(0, 3))
	require.NoError(t, q.Flush())
	q.QueueCommand(command.NewDraw(0, 3))
	assert.ErrorIs(t, q.Flush(), ErrReplayBacklog)

	require.NoError(t, submitter.Drain())
	assert.Equal(t, 1, dev.Count(command.Draw))
}

func TestFlushFailureResetsQueue(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	q := NewImmediate(dev)
	q.QueueCommand(command.NewDraw(0, 3))
	q.QueueAction(func() { dev.Note("never") })
	q.QueueCommand(command.NewDraw(3, 3))

	dev.FailNextSubmit("out of memory")
	err := q.Flush()
	var se *backend.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "out of memory", se.Diagnostic)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, dev.Operations())

	q.QueueCommand(command.NewPresent())
	require.NoError(t, q.Flush())
	assert.Equal(t, []string{"Present"}, instructions(dev.Operations()))
}

func TestDeferredFlushFailureDropsRecording(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	submitter := NewSubmitter(dev, 4, nil)
	ctx, err := dev.NewDeferredContext()
	require.NoError(t, err)
	q := NewDeferred(ctx, 1, submitter)

	q.QueueCommand(command.NewDraw(0, 3))
	q.QueueAction(func() {})
	q.QueueCommand(command.NewDraw(3, 3))
	dev.FailNextSubmit("bad state")
	assert.Equal(t, "bad state", backend.Diagnostic(q.Flush()))
	assert.Equal(t, 0, submitter.Pending())

	q.QueueCommand(command.NewDraw(6, 3))
	require.NoError(t, q.Flush())
	require.NoError(t, submitter.Drain())
	assert.Equal(t, 1, dev.Count(command.Draw))
}

func TestDiscardDropsReservedSlots(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	submitter := NewSubmitter(dev, 4, nil)
	ctx, err := dev.NewDeferredContext()
	require.NoError(t, err)
	queues := []Queue{NewImmediate(dev), NewDeferred(ctx, 1, submitter)}

	for _, q := range queues {
		q.QueueCommand(command.NewDraw(0, 3))
		q.ReserveSlot()
		q.QueueAction(func() { dev.Note("dropped") })
		q.Payload([]byte{1, 2, 3, 4})

		q.Discard()
		assert.Equal(t, 0, q.Len())
		assert.Empty(t, q.Items())

		// A discarded queue flushes cleanly instead of reporting the abandoned reservation.
		q.QueueCommand(command.NewDraw(3, 3))
		require.NotPanics(t, func() { require.NoError(t, q.Flush()) })
	}
	require.NoError(t, submitter.Drain())

	draws := dev.Commands(command.Draw)
	require.Len(t, draws, 2)
	for _, op := range draws {
		assert.Equal(t, uint64(3), op.Command.Arg0)
	}
	assert.Empty(t, dev.Commands(command.NoOperation))
	for _, op := range dev.Operations() {
		assert.NotEqual(t, "dropped", op.Note)
	}
}

func TestQueueGrowsLinearly(t *testing.T) {
	q := NewImmediate(backend.NewRecordingDevice(64, 64)).(*immediateQueue)
	assert.Equal(t, InitialCapacity, cap(q.commands))
	for range InitialCapacity + 1 {
		q.QueueCommand(command.NewDraw(0, 3))
	}
	assert.Equal(t, InitialCapacity+GrowthIncrement, cap(q.commands))
}

func TestHelpersStagePayload(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	q := NewImmediate(dev)
	buf, err := dev.CreateBuffer(backend.BufferDescriptor{Size: 3})
	require.NoError(t, err)

	SetRenderTargets(q, 5, 6, 7)
	ClearRenderTarget(q, 6, [4]float32{1, 0, 0, 1})
	SetShaderResources(q, command.StageFragment, 2, []command.ResourceBinding{{Slot: 1, Kind: command.BindSampler, Handle: 8}})
	BufferWrite(q, buf, []byte{1, 2, 3})
	require.NoError(t, q.Flush())

	ops := dev.Operations()
	require.Len(t, ops, 4)
	assert.Equal(t, []command.Handle{6, 7}, command.DecodeHandles(nil, ops[0].Payload))
	assert.Equal(t, [4]float32{1, 0, 0, 1}, command.DecodeColor(ops[1].Payload))
	assert.Equal(t, []command.ResourceBinding{{Slot: 1, Kind: command.BindSampler, Handle: 8}}, command.DecodeBindings(nil, ops[2].Payload))
	assert.Equal(t, []byte{1, 2, 3}, dev.BufferData(buf))
}
