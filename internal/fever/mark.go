package fever

import (
	"fmt"
	"math"
	"strings"
)

// Target is what a mark command applies to.
type Target string

const (
	TargetItem  Target = "item"
	TargetFeed  Target = "feed"
	TargetGroup Target = "group"
)

// State is the requested new state.
type State string

const (
	StateRead    State = "read"
	StateUnread  State = "unread"
	StateSaved   State = "saved"
	StateUnsaved State = "unsaved"
)

// MarkCommand is a single state change requested through mark/as/id.
type MarkCommand struct {
	Target Target
	ID     int64
	State  State
	Before *int64 // epoch seconds
}

// Action is the closed set of mutations a MarkCommand can map to.
type Action int

const (
	ActionNone Action = iota
	ActionItemRead
	ActionItemUnread
	ActionItemSaved
	ActionItemUnsaved
	ActionFeedRead
	ActionGroupRead
)

func (a Action) String() string {
	switch a {
	case ActionItemRead:
		return "item_read"
	case ActionItemUnread:
		return "item_unread"
	case ActionItemSaved:
		return "item_saved"
	case ActionItemUnsaved:
		return "item_unsaved"
	case ActionFeedRead:
		return "feed_read"
	case ActionGroupRead:
		return "group_read"
	}
	return "none"
}

// Section returns the id list section refreshed after the action, or "".
func (a Action) Section() string {
	switch a {
	case ActionItemRead, ActionItemUnread, ActionFeedRead, ActionGroupRead:
		return FlagUnreadItemIDs
	case ActionItemSaved, ActionItemUnsaved:
		return FlagSavedItemIDs
	}
	return ""
}

type markKey struct {
	target Target
	state  State
}

var markActions = map[markKey]Action{
	{TargetItem, StateRead}:    ActionItemRead,
	{TargetItem, StateUnread}:  ActionItemUnread,
	{TargetItem, StateSaved}:   ActionItemSaved,
	{TargetItem, StateUnsaved}: ActionItemUnsaved,
	{TargetFeed, StateRead}:    ActionFeedRead,
	{TargetGroup, StateRead}:   ActionGroupRead,
}

// Action maps the command onto the action table. Unknown combinations map
// to ActionNone.
func (c MarkCommand) Action() Action {
	return markActions[markKey{c.Target, c.State}]
}

// millisecondThreshold separates epoch milliseconds from epoch seconds.
const millisecondThreshold = 10_000_000_000

// NormalizeBefore converts an epoch in milliseconds to seconds, rounding.
// Values at or below 10^10 are taken as seconds already.
func NormalizeBefore(v int64) int64 {
	if v > millisecondThreshold {
		return int64(math.Round(float64(v) / 1000))
	}
	return v
}

// ParseMark builds a MarkCommand from the raw fields. ok is false when id
// is not numeric. mark and as are matched case-insensitively.
func ParseMark(mark, as, id, before string) (MarkCommand, bool) {
	n, ok := parseNumeric(id)
	if !ok {
		return MarkCommand{}, false
	}
	cmd := MarkCommand{
		Target: Target(strings.ToLower(strings.TrimSpace(mark))),
		State:  State(strings.ToLower(strings.TrimSpace(as))),
		ID:     n,
	}
	if b, ok := parseNumeric(before); ok {
		b = NormalizeBefore(b)
		cmd.Before = &b
	}
	return cmd, true
}

// Dispatcher applies mark commands to storage.
type Dispatcher struct {
	store FlagStore
}

// NewDispatcher returns a Dispatcher writing to store.
func NewDispatcher(store FlagStore) *Dispatcher {
	return &Dispatcher{store: store}
}

// Apply performs cmd for userID and returns the action taken. Unmapped
// commands return ActionNone without error. Feed and group marking are
// accepted but change nothing.
func (d *Dispatcher) Apply(userID int64, cmd MarkCommand) (Action, error) {
	action := cmd.Action()

	var err error
	switch action {
	case ActionItemRead:
		err = d.store.SetItemRead(userID, cmd.ID, true)
	case ActionItemUnread:
		err = d.store.SetItemRead(userID, cmd.ID, false)
	case ActionItemSaved:
		err = d.store.SetItemFavorite(userID, cmd.ID, true)
	case ActionItemUnsaved:
		err = d.store.SetItemFavorite(userID, cmd.ID, false)
	case ActionFeedRead, ActionGroupRead:
		// TODO: mark everything in the feed/group older than cmd.Before once
		// clients are confirmed to expect the destructive variant.
	}
	if err != nil {
		return action, fmt.Errorf("apply %s to %d: %w", action, cmd.ID, err)
	}
	return action, nil
}
