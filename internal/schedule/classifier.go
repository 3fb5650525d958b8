// Package schedule classifies channel slots against a wall-clock minute.
// Everything here is pure arithmetic over validated channels: no writes,
// no clocks, safe to call concurrently and as often as the caller likes.
package schedule

import (
	"github.com/creatorloop/clipscript-bot/internal/model"
)

// State is the classification of a channel (or slot) at one instant.
type State string

const (
	StateCurrent  State = "current"
	StateNext     State = "next"
	StatePrevious State = "previous"
	StateDefault  State = "default"
)

// Active reports whether a slot starting at slotMinute with the given
// window covers now. Windows that run past midnight wrap onto the next day.
func Active(slotMinute, window, now int) bool {
	end := slotMinute + window
	if end < model.MinutesPerDay {
		return now >= slotMinute && now < end
	}
	return now >= slotMinute || now < end%model.MinutesPerDay
}

// EndedToday reports whether the slot's active window has already closed
// earlier on the current day.
func EndedToday(slotMinute, window, now int) bool {
	end := slotMinute + window
	if end < model.MinutesPerDay {
		return now >= end
	}
	// A wrapped window that started yesterday evening ends this morning.
	return end%model.MinutesPerDay <= now && now < slotMinute
}

// MinutesUntil returns how many minutes remain until slotMinute next
// occurs, treating a time at or before now as tomorrow's occurrence.
func MinutesUntil(slotMinute, now int) int {
	if slotMinute > now {
		return slotMinute - now
	}
	return slotMinute + model.MinutesPerDay - now
}

// ChannelStatus is the per-channel classification result.
type ChannelStatus struct {
	Channel *model.Channel
	State   State
	// Slot is the representative slot for current/next states, nil for default.
	Slot *model.Slot
	// NextDay marks a next slot whose occurrence falls on the following day.
	NextDay bool
}

// Pick identifies the slot behind one of the fleet-wide selections.
type Pick struct {
	ChannelID string
	SlotID    string
	Minute    int
}

// Fleet is the fleet-wide classification used for single-highlight views.
type Fleet struct {
	Channels []ChannelStatus
	Current  *Pick
	Next     *Pick
	Previous *Pick
	// States maps channel id to its fleet-wide state; channels not behind
	// any pick report default here even when their own state differs.
	States map[string]State
}

func eligibleSlots(ch *model.Channel) []*model.Slot {
	if !ch.AutomationEnabled {
		return nil
	}
	var out []*model.Slot
	for i := range ch.Slots {
		s := &ch.Slots[i]
		if s.Enabled && s.Minute() >= 0 {
			out = append(out, s)
		}
	}
	return out
}

// ClassifyChannel resolves a single channel's state at now (minutes since
// local midnight). Resolution order: an active slot wins (latest-starting
// on overlap), then the soonest upcoming slot today, then the earliest
// slot understood as tomorrow, then default.
func ClassifyChannel(ch *model.Channel, now int) ChannelStatus {
	st := ChannelStatus{Channel: ch, State: StateDefault}
	slots := eligibleSlots(ch)
	if len(slots) == 0 {
		return st
	}

	window := ch.ActiveWindowMinutes
	var active *model.Slot
	for _, s := range slots {
		if Active(s.Minute(), window, now) && (active == nil || s.Minute() > active.Minute()) {
			active = s
		}
	}
	if active != nil {
		st.State = StateCurrent
		st.Slot = active
		return st
	}

	var next *model.Slot
	for _, s := range slots {
		if s.Minute() > now && (next == nil || s.Minute() < next.Minute()) {
			next = s
		}
	}
	if next == nil {
		// Everything has passed today; the earliest slot is tomorrow's next.
		for _, s := range slots {
			if next == nil || s.Minute() < next.Minute() {
				next = s
			}
		}
		st.NextDay = true
	}
	if next != nil {
		st.State = StateNext
		st.Slot = next
	}
	return st
}

// Classify computes per-channel states and the three fleet-wide picks.
// Ties are broken by input order, so callers supplying a stable channel
// ordering get deterministic results.
func Classify(channels []*model.Channel, now int) Fleet {
	fleet := Fleet{
		Channels: make([]ChannelStatus, 0, len(channels)),
		States:   make(map[string]State, len(channels)),
	}
	for _, ch := range channels {
		fleet.Channels = append(fleet.Channels, ClassifyChannel(ch, now))
		fleet.States[ch.ID] = StateDefault
	}

	// Global current: latest representative time among current channels.
	for i := range fleet.Channels {
		cs := &fleet.Channels[i]
		if cs.State != StateCurrent {
			continue
		}
		if fleet.Current == nil || cs.Slot.Minute() > fleet.Current.Minute {
			fleet.Current = &Pick{ChannelID: cs.Channel.ID, SlotID: cs.Slot.ID, Minute: cs.Slot.Minute()}
		}
	}

	// Global next: smallest minutes-until among next channels.
	bestUntil := 0
	for i := range fleet.Channels {
		cs := &fleet.Channels[i]
		if cs.State != StateNext {
			continue
		}
		if fleet.Current != nil && cs.Channel.ID == fleet.Current.ChannelID {
			continue
		}
		until := MinutesUntil(cs.Slot.Minute(), now)
		if fleet.Next == nil || until < bestUntil {
			fleet.Next = &Pick{ChannelID: cs.Channel.ID, SlotID: cs.Slot.ID, Minute: cs.Slot.Minute()}
			bestUntil = until
		}
	}

	fleet.Previous = previousPick(channels, fleet.Current, now)

	if fleet.Current != nil {
		fleet.States[fleet.Current.ChannelID] = StateCurrent
	}
	if fleet.Next != nil {
		fleet.States[fleet.Next.ChannelID] = StateNext
	}
	if fleet.Previous != nil {
		fleet.States[fleet.Previous.ChannelID] = StatePrevious
	}
	return fleet
}

// previousPick finds the most recently ended slot across the fleet,
// excluding the global-current channel. Slots whose window closed earlier
// today win; when none did, each channel's latest slot counts as having
// ended yesterday.
func previousPick(channels []*model.Channel, current *Pick, now int) *Pick {
	var best *Pick
	for _, ch := range channels {
		if current != nil && ch.ID == current.ChannelID {
			continue
		}
		for _, s := range eligibleSlots(ch) {
			if !EndedToday(s.Minute(), ch.ActiveWindowMinutes, now) {
				continue
			}
			if best == nil || s.Minute() > best.Minute {
				best = &Pick{ChannelID: ch.ID, SlotID: s.ID, Minute: s.Minute()}
			}
		}
	}
	if best != nil {
		return best
	}
	// Nothing ended today: fall back to the latest slot per channel,
	// interpreted as yesterday's final firing.
	for _, ch := range channels {
		if current != nil && ch.ID == current.ChannelID {
			continue
		}
		var latest *model.Slot
		for _, s := range eligibleSlots(ch) {
			if latest == nil || s.Minute() > latest.Minute() {
				latest = s
			}
		}
		if latest == nil {
			continue
		}
		if best == nil || latest.Minute() > best.Minute {
			best = &Pick{ChannelID: ch.ID, SlotID: latest.ID, Minute: latest.Minute()}
		}
	}
	return best
}
