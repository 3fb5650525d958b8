package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/creatorloop/clipscript-bot/internal/model"
)

// ChannelRepository abstracts persistence of channel records. List results
// are ordered by channel id so callers relying on stable iteration (the
// classifier's tie-breaks) get deterministic input.
type ChannelRepository interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
	GetByOwner(ctx context.Context, ownerID int64) ([]*model.Channel, error)
	Save(ctx context.Context, ch *model.Channel) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.Channel, error)
	ListAutomationEnabled(ctx context.Context) ([]*model.Channel, error)

	// UpdateSlotLastFired records a firing for the slot's occurrence on
	// firedAt's calendar date (in the channel's timezone). The write is
	// conditional: if a firing for that date is already recorded the call
	// returns ErrAlreadyFired and changes nothing.
	UpdateSlotLastFired(ctx context.Context, channelID, slotID string, firedAt time.Time) error
}

// FileChannelRepository stores channels in a JSON file. It is the
// single-node deployment backend and the test double's reference behavior.
type FileChannelRepository struct {
	path string
	mu   sync.Mutex
	data map[string]*model.Channel
}

// NewFileChannelRepository loads channels from the given JSON file or
// starts empty when the file does not exist yet.
func NewFileChannelRepository(path string) (*FileChannelRepository, error) {
	r := &FileChannelRepository{path: path, data: map[string]*model.Channel{}}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileChannelRepository) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(&r.data); err != nil {
		return err
	}
	for _, ch := range r.data {
		ch.Normalize()
	}
	return nil
}

func (r *FileChannelRepository) saveLocked() error {
	file, err := os.Create(r.path)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(r.data)
}

func cloneChannel(ch *model.Channel) *model.Channel {
	cp := *ch
	cp.Slots = make([]model.Slot, len(ch.Slots))
	copy(cp.Slots, ch.Slots)
	return &cp
}

func (r *FileChannelRepository) Get(ctx context.Context, id string) (*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.data[id]; ok {
		return cloneChannel(ch), nil
	}
	return nil, ErrNotFound
}

func (r *FileChannelRepository) GetByOwner(ctx context.Context, ownerID int64) ([]*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Channel
	for _, ch := range r.data {
		if ch.OwnerID == ownerID {
			out = append(out, cloneChannel(ch))
		}
	}
	sortChannels(out)
	return out, nil
}

func (r *FileChannelRepository) Save(ctx context.Context, ch *model.Channel) error {
	ch.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[ch.ID] = cloneChannel(ch)
	return r.saveLocked()
}

func (r *FileChannelRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return r.saveLocked()
}

func (r *FileChannelRepository) List(ctx context.Context) ([]*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Channel, 0, len(r.data))
	for _, ch := range r.data {
		out = append(out, cloneChannel(ch))
	}
	sortChannels(out)
	return out, nil
}

func (r *FileChannelRepository) ListAutomationEnabled(ctx context.Context) ([]*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Channel
	for _, ch := range r.data {
		if ch.AutomationEnabled {
			out = append(out, cloneChannel(ch))
		}
	}
	sortChannels(out)
	return out, nil
}

// UpdateSlotLastFired performs the conditional write under the repository
// mutex: the mutex is this backend's equivalent of the store's optimistic
// primitive, so overlapping ticks serialize here.
func (r *FileChannelRepository) UpdateSlotLastFired(ctx context.Context, channelID, slotID string, firedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.data[channelID]
	if !ok {
		return ErrNotFound
	}
	slot := ch.Slot(slotID)
	if slot == nil {
		return ErrNotFound
	}
	loc := ch.Location()
	if slot.LastFiredAt != nil && sameDate(slot.LastFiredAt.In(loc), firedAt.In(loc)) {
		return ErrAlreadyFired
	}
	t := firedAt
	slot.LastFiredAt = &t
	return r.saveLocked()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sortChannels(chs []*model.Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].ID < chs[j].ID })
}
