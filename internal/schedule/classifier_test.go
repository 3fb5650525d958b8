package schedule

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/creatorloop/clipscript-bot/internal/model"
)

func testChannel(id string, window int, times ...string) *model.Channel {
	ch := &model.Channel{
		ID:                  id,
		Name:                id,
		AutomationEnabled:   true,
		ActiveWindowMinutes: window,
	}
	for i, t := range times {
		ch.Slots = append(ch.Slots, model.Slot{
			ID:      fmt.Sprintf("%s-slot-%d", id, i),
			Enabled: true,
			Days:    []int{0, 1, 2, 3, 4, 5, 6},
			Time:    t,
		})
	}
	ch.Normalize()
	return ch
}

func TestActive_WrapAround(t *testing.T) {
	// 23:50 with a 20 minute window runs until 00:10.
	slot := 23*60 + 50
	for _, now := range []int{1430, 1435, 1439, 0, 5, 9} {
		if !Active(slot, 20, now) {
			t.Fatalf("expected active at minute %d", now)
		}
	}
	for _, now := range []int{10, 11, 720, 1429} {
		if Active(slot, 20, now) {
			t.Fatalf("expected inactive at minute %d", now)
		}
	}
}

func TestEndedToday(t *testing.T) {
	// 08:00 + 11 ends 08:11.
	if EndedToday(480, 11, 490) {
		t.Fatalf("window still open at 08:10")
	}
	if !EndedToday(480, 11, 491) {
		t.Fatalf("window closed at 08:11")
	}
	// Wrapped window 23:50+20 ends 00:10: closed this morning at noon,
	// not yet while still running.
	if !EndedToday(1430, 20, 720) {
		t.Fatalf("wrapped window should count as ended at noon")
	}
	if EndedToday(1430, 20, 1435) {
		t.Fatalf("wrapped window is running at 23:55")
	}
	if EndedToday(1430, 20, 5) {
		t.Fatalf("wrapped window is running at 00:05")
	}
}

func TestClassifyChannel_Scenario(t *testing.T) {
	ch := testChannel("a", 11, "08:00", "20:00")

	st := ClassifyChannel(ch, 8*60+5)
	if st.State != StateCurrent || st.Slot.Time != "08:00" {
		t.Fatalf("08:05: got %s %+v", st.State, st.Slot)
	}

	st = ClassifyChannel(ch, 19*60)
	if st.State != StateNext || st.Slot.Time != "20:00" || st.NextDay {
		t.Fatalf("19:00: got %s %+v nextday=%v", st.State, st.Slot, st.NextDay)
	}

	// At 23:00 both slots have passed; per-channel next is tomorrow's
	// 08:00, while the fleet view reports the 20:00 slot as previous.
	st = ClassifyChannel(ch, 23*60)
	if st.State != StateNext || st.Slot.Time != "08:00" || !st.NextDay {
		t.Fatalf("23:00: got %s %+v nextday=%v", st.State, st.Slot, st.NextDay)
	}
	fleet := Classify([]*model.Channel{ch}, 23*60)
	if fleet.Previous == nil || fleet.Previous.Minute != 20*60 {
		t.Fatalf("23:00: previous pick %+v", fleet.Previous)
	}
	if fleet.States["a"] != StatePrevious {
		t.Fatalf("23:00: fleet state %s", fleet.States["a"])
	}
}

func TestClassifyChannel_NextDayFallback(t *testing.T) {
	ch := testChannel("a", 11, "09:00")
	st := ClassifyChannel(ch, 10*60)
	if st.State != StateNext || st.Slot.Time != "09:00" || !st.NextDay {
		t.Fatalf("got %s %+v nextday=%v", st.State, st.Slot, st.NextDay)
	}
}

func TestClassifyChannel_LatestActiveWins(t *testing.T) {
	ch := testChannel("a", 11, "08:00", "08:05")
	st := ClassifyChannel(ch, 8*60+6)
	if st.State != StateCurrent || st.Slot.Time != "08:05" {
		t.Fatalf("got %s %+v", st.State, st.Slot)
	}
}

func TestClassifyChannel_Ineligible(t *testing.T) {
	ch := testChannel("a", 11, "08:00")
	ch.AutomationEnabled = false
	if st := ClassifyChannel(ch, 8*60+5); st.State != StateDefault {
		t.Fatalf("automation off: got %s", st.State)
	}

	ch = testChannel("b", 11, "08:00")
	ch.Slots[0].Enabled = false
	if st := ClassifyChannel(ch, 8*60+5); st.State != StateDefault {
		t.Fatalf("slot disabled: got %s", st.State)
	}

	ch = testChannel("c", 11)
	ch.Slots = append(ch.Slots, model.Slot{Enabled: true, Time: "25:99"})
	ch.Normalize()
	if st := ClassifyChannel(ch, 8*60+5); st.State != StateDefault {
		t.Fatalf("malformed slot: got %s", st.State)
	}
}

func TestClassify_SingleGlobalCurrent(t *testing.T) {
	a := testChannel("a", 11, "08:00")
	b := testChannel("b", 11, "08:03")
	c := testChannel("c", 11, "12:00")
	fleet := Classify([]*model.Channel{a, b, c}, 8*60+5)

	if fleet.Current == nil || fleet.Current.ChannelID != "b" {
		t.Fatalf("current pick %+v", fleet.Current)
	}
	currents := 0
	for _, st := range fleet.States {
		if st == StateCurrent {
			currents++
		}
	}
	if currents != 1 {
		t.Fatalf("expected exactly one global current, got %d", currents)
	}
	if fleet.Next == nil || fleet.Next.ChannelID != "c" {
		t.Fatalf("next pick %+v", fleet.Next)
	}
	if fleet.States["a"] == StateCurrent {
		t.Fatalf("channel a should not be global current")
	}
}

func TestClassify_GlobalNextNormalizesAcrossMidnight(t *testing.T) {
	// At 22:00 channel a's 23:00 slot (60 min away) beats channel b's
	// 01:00 slot (180 min away, tomorrow).
	a := testChannel("a", 11, "23:00")
	b := testChannel("b", 11, "01:00")
	fleet := Classify([]*model.Channel{a, b}, 22*60)
	if fleet.Next == nil || fleet.Next.ChannelID != "a" {
		t.Fatalf("next pick %+v", fleet.Next)
	}
}

func TestClassify_PreviousFallsBackToYesterday(t *testing.T) {
	// At 00:30 nothing has ended today; the latest slot counts as
	// yesterday's final firing.
	a := testChannel("a", 11, "09:00")
	b := testChannel("b", 11, "21:00")
	fleet := Classify([]*model.Channel{a, b}, 30)
	if fleet.Previous == nil || fleet.Previous.ChannelID != "b" || fleet.Previous.Minute != 21*60 {
		t.Fatalf("previous pick %+v", fleet.Previous)
	}
}

func TestClassify_Pure(t *testing.T) {
	channels := []*model.Channel{
		testChannel("a", 11, "08:00", "20:00"),
		testChannel("b", 30, "23:50"),
	}
	first := Classify(channels, 8*60+5)
	second := Classify(channels, 8*60+5)
	if !reflect.DeepEqual(first.States, second.States) {
		t.Fatalf("classification not stable: %v vs %v", first.States, second.States)
	}
}
