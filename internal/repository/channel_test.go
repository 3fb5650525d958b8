package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/creatorloop/clipscript-bot/internal/model"
)

func fileRepo(t *testing.T) *FileChannelRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.json")
	repo, err := NewFileChannelRepository(path)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return repo
}

func sampleChannel(id string) *model.Channel {
	return &model.Channel{
		ID:                id,
		OwnerID:           1,
		Name:              "daily shorts",
		Platform:          "tiktok",
		AutomationEnabled: true,
		Timezone:          "UTC",
		Slots: []model.Slot{
			{ID: id + "-s0", Enabled: true, Days: []int{1, 2, 3}, Time: "09:00", PromptsPerRun: 2},
		},
	}
}

func TestFileChannelRepository_CRUD(t *testing.T) {
	repo := fileRepo(t)
	ctx := context.Background()

	ch := sampleChannel("ch1")
	if err := repo.Save(ctx, ch); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != ch.Name || len(got.Slots) != 1 || got.Slots[0].Minute() != 9*60 {
		t.Fatalf("unexpected data: %#v", got)
	}

	byOwner, err := repo.GetByOwner(ctx, 1)
	if err != nil || len(byOwner) != 1 {
		t.Fatalf("get by owner: %v %d", err, len(byOwner))
	}

	if err := repo.Delete(ctx, "ch1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "ch1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileChannelRepository_ListOrderAndFilter(t *testing.T) {
	repo := fileRepo(t)
	ctx := context.Background()

	b := sampleChannel("b")
	a := sampleChannel("a")
	a.AutomationEnabled = false
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("expected id order, got %v %v", all[0].ID, all[1].ID)
	}

	enabled, err := repo.ListAutomationEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", enabled)
	}
}

func TestFileChannelRepository_ConditionalFiringWrite(t *testing.T) {
	repo := fileRepo(t)
	ctx := context.Background()

	ch := sampleChannel("ch1")
	if err := repo.Save(ctx, ch); err != nil {
		t.Fatalf("save: %v", err)
	}

	firedAt := time.Date(2026, time.August, 25, 9, 0, 0, 0, time.UTC)
	if err := repo.UpdateSlotLastFired(ctx, "ch1", "ch1-s0", firedAt); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// A second writer for the same occurrence date loses.
	err := repo.UpdateSlotLastFired(ctx, "ch1", "ch1-s0", firedAt.Add(2*time.Minute))
	if !errors.Is(err, ErrAlreadyFired) {
		t.Fatalf("expected ErrAlreadyFired, got %v", err)
	}

	got, _ := repo.Get(ctx, "ch1")
	if got.Slots[0].LastFiredAt == nil || !got.Slots[0].LastFiredAt.Equal(firedAt) {
		t.Fatalf("losing write must not change state: %v", got.Slots[0].LastFiredAt)
	}

	// The next day is a new occurrence.
	if err := repo.UpdateSlotLastFired(ctx, "ch1", "ch1-s0", firedAt.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("next day write: %v", err)
	}

	if err := repo.UpdateSlotLastFired(ctx, "ch1", "missing", firedAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown slot, got %v", err)
	}
}

func TestFileChannelRepository_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	repo, err := NewFileChannelRepository(path)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	ctx := context.Background()
	if err := repo.Save(ctx, sampleChannel("ch1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := NewFileChannelRepository(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.Slots[0].Minute() != 9*60 {
		t.Fatalf("slot times must be re-parsed on load, got %d", got.Slots[0].Minute())
	}
}
