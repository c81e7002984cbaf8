package queue

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

const (
	// InitialCapacity is the number of commands a new queue can hold before growing.
	InitialCapacity = 32

	// GrowthIncrement is the number of command slots added each time a queue grows.
	GrowthIncrement = 50
)

// Queue accumulates render commands and CPU actions for one worker context and submits them on Flush.
// A Queue is owned by exactly one goroutine and is not safe for concurrent use.
type Queue interface {
	// QueueCommand appends a command.
	//
	// Parameters:
	//   - cmd: the command to append
	QueueCommand(cmd command.RenderCommand)

	// ReserveSlot appends a placeholder whose content is supplied later with QueueCommandAt.
	// Every reserved slot must be filled before the next Flush.
	//
	// Returns:
	//   - uint32: the index of the reserved slot
	ReserveSlot() uint32

	// QueueCommandAt fills a slot returned by ReserveSlot. Panics if the slot is out of range,
	// was never reserved, or was already filled.
	//
	// Parameters:
	//   - slot: the reserved slot index
	//   - cmd: the command to place in the slot
	QueueCommandAt(slot uint32, cmd command.RenderCommand)

	// QueueAction records a CPU callback that runs during Flush after every command queued before
	// it has been submitted and before any command queued after it.
	//
	// Parameters:
	//   - fn: the callback
	QueueAction(fn func())

	// Payload stages variable-length data for commands queued in the current flush window.
	//
	// Parameters:
	//   - data: the bytes to stage; they are copied
	//
	// Returns:
	//   - command.PayloadRef: the reference to store in a command operand
	Payload(data []byte) command.PayloadRef

	// Flush submits everything queued since the previous flush and resets the queue, including
	// when the backend rejects the submission.
	//
	// Returns:
	//   - error: a *backend.SubmissionError if the backend rejected a segment
	Flush() error

	// Discard drops everything queued since the previous flush without submitting it, reserved
	// slots included.
	Discard()

	// Items lists the queued commands and actions in order, for inspection.
	//
	// Returns:
	//   - []command.QueueItem: commands interleaved with actions at their recorded offsets
	Items() []command.QueueItem

	// Len returns the number of queued commands, reserved slots included.
	Len() int

	// Deferred reports whether Flush records a command list instead of executing directly.
	Deferred() bool
}

type queuedAction struct {
	at int
	fn func()
}

// commandBuffer is the storage shared by both queue variants.
type commandBuffer struct {
	commands []command.RenderCommand
	actions  []queuedAction
	// reserved maps reserved slot indexes to whether they have been filled.
	reserved map[uint32]bool
	unfilled int
	payload  []byte
}

func newCommandBuffer() commandBuffer {
	return commandBuffer{
		commands: make([]command.RenderCommand, 0, InitialCapacity),
		reserved: make(map[uint32]bool),
	}
}

func (b *commandBuffer) QueueCommand(cmd command.RenderCommand) {
	if len(b.commands) == cap(b.commands) {
		grown := make([]command.RenderCommand, len(b.commands), cap(b.commands)+GrowthIncrement)
		copy(grown, b.commands)
		b.commands = grown
	}
	b.commands = append(b.commands, cmd)
}

func (b *commandBuffer) ReserveSlot() uint32 {
	slot := uint32(len(b.commands))
	b.QueueCommand(command.NewNoOperation(command.UnfilledSlotMarker))
	b.reserved[slot] = false
	b.unfilled++
	return slot
}

func (b *commandBuffer) QueueCommandAt(slot uint32, cmd command.RenderCommand) {
	if int(slot) >= len(b.commands) {
		panic(fmt.Sprintf("queue: slot %d out of range (%d commands)", slot, len(b.commands)))
	}
	filled, ok := b.reserved[slot]
	if !ok {
		panic(fmt.Sprintf("queue: slot %d was not reserved", slot))
	}
	if filled {
		panic(fmt.Sprintf("queue: slot %d already filled", slot))
	}
	b.commands[slot] = cmd
	b.reserved[slot] = true
	b.unfilled--
}

func (b *commandBuffer) QueueAction(fn func()) {
	b.actions = append(b.actions, queuedAction{at: len(b.commands), fn: fn})
}

func (b *commandBuffer) Payload(data []byte) command.PayloadRef {
	// Keep every staged block 4-byte aligned.
	for len(b.payload)%4 != 0 {
		b.payload = append(b.payload, 0)
	}
	ref := command.PayloadRef{Offset: uint32(len(b.payload)), Length: uint32(len(data))}
	b.payload = append(b.payload, data...)
	return ref
}

func (b *commandBuffer) Items() []command.QueueItem {
	items := make([]command.QueueItem, 0, len(b.commands)+len(b.actions))
	next := 0
	for i, cmd := range b.commands {
		for next < len(b.actions) && b.actions[next].at == i {
			items = append(items, command.QueueItem{Kind: command.ItemAction, Action: b.actions[next].fn})
			next++
		}
		items = append(items, command.QueueItem{Kind: command.ItemCommand, Command: cmd})
	}
	for ; next < len(b.actions); next++ {
		items = append(items, command.QueueItem{Kind: command.ItemAction, Action: b.actions[next].fn})
	}
	return items
}

func (b *commandBuffer) Len() int {
	return len(b.commands)
}

// submit sends the queued commands to ctx in segments split at every action, running each action
// between the segments around it. Panics if a reserved slot is still unfilled.
func (b *commandBuffer) submit(ctx backend.Context) error {
	if b.unfilled > 0 {
		panic(fmt.Sprintf("queue: flush with %d unfilled reserved slots", b.unfilled))
	}
	start := 0
	for _, a := range b.actions {
		if a.at > start {
			if err := ctx.Submit(b.commands[start:a.at], b.payload); err != nil {
				return err
			}
			start = a.at
		}
		a.fn()
	}
	if start < len(b.commands) {
		return ctx.Submit(b.commands[start:], b.payload)
	}
	return nil
}

func (b *commandBuffer) Discard() {
	b.reset()
}

// reset clears the queue while keeping its storage.
func (b *commandBuffer) reset() {
	b.commands = b.commands[:0]
	clear(b.actions)
	b.actions = b.actions[:0]
	clear(b.reserved)
	b.unfilled = 0
	b.payload = b.payload[:0]
}
