package command

// ItemKind tags the variant held by a QueueItem.
type ItemKind uint8

const (
	ItemCommand ItemKind = iota
	ItemAction
)

// QueueItem is either a RenderCommand or a CPU action, in queue order.
// Queues produce these for inspection only; execution never goes through them.
type QueueItem struct {
	Kind    ItemKind
	Command RenderCommand
	Action  func()
}

// IsAction reports whether the item is a CPU action.
func (i QueueItem) IsAction() bool {
	return i.Kind == ItemAction
}
