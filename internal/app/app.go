package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/creatorloop/clipscript-bot/internal/config"
	"github.com/creatorloop/clipscript-bot/internal/model"
	"github.com/creatorloop/clipscript-bot/internal/repository"
	"github.com/creatorloop/clipscript-bot/internal/schedule"
	"github.com/creatorloop/clipscript-bot/internal/scheduler"
	"github.com/creatorloop/clipscript-bot/internal/service"
	"github.com/creatorloop/clipscript-bot/pkg/openai"
	"github.com/creatorloop/clipscript-bot/pkg/telegram"
)

type convStage int

const (
	stageName convStage = iota + 1
	stagePlatform
	stageTopic
	stageTone
	stageLanguage
	stageTimes
)

type conversationState struct {
	Stage   convStage
	Channel model.Channel
}

var platformKeyboard = [][]string{{"tiktok", "youtube"}, {"instagram", "telegram"}}
var toneKeyboard = [][]string{{"casual", "energetic"}, {"professional", "funny"}}

// App coordinates the bot loop, the tick processor and the services.
type App struct {
	cfg    *config.Config
	repo   repository.ChannelRepository
	gen    *service.GenerationService
	proc   *scheduler.Processor
	tg     *telegram.Client
	logger zerolog.Logger
	convs  map[int64]*conversationState
}

// botDispatcher sends generated scripts back to the channel owner's chat.
type botDispatcher struct {
	tg *telegram.Client
}

func (d botDispatcher) Send(ctx context.Context, ch *model.Channel, content string) error {
	return d.tg.SendMessage(ctx, ch.OwnerID, content, nil)
}

func New(cfg *config.Config, repo repository.ChannelRepository, logger zerolog.Logger) *App {
	tg := telegram.NewClient(cfg.TelegramToken)
	var ai service.AIClient
	if cfg.OpenAIToken != "" {
		ai = openai.NewClient(cfg.OpenAIToken, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	gen := service.NewGenerationService(ai, cfg.Prompts)
	return &App{
		cfg:    cfg,
		repo:   repo,
		gen:    gen,
		proc:   scheduler.New(repo, gen, botDispatcher{tg: tg}, cfg.GenerationTimeout, cfg.TickWorkers, logger),
		tg:     tg,
		logger: logger,
		convs:  map[int64]*conversationState{},
	}
}

func (a *App) Run(ctx context.Context) error {
	a.setCommands(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.handleUpdates(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.proc.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (a *App) setCommands(ctx context.Context) {
	cmds := []telegram.BotCommand{
		{Command: "start", Description: "Start interaction"},
		{Command: "add_channel", Description: "Configure a new channel"},
		{Command: "channels", Description: "List your channels"},
		{Command: "status", Description: "Now playing / up next / just finished"},
		{Command: "run_now", Description: "Generate a script immediately"},
		{Command: "pause", Description: "Pause automation"},
		{Command: "resume", Description: "Resume automation"},
		{Command: "stop", Description: "Disable everything"},
	}
	if err := a.tg.SetCommands(ctx, cmds); err != nil {
		a.logger.Warn().Err(err).Msg("set commands failed")
	}
}

func (a *App) handleUpdates(ctx context.Context) {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.tg.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn().Err(err).Msg("get updates failed")
			time.Sleep(time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil {
				continue
			}
			a.handleMessage(ctx, u.Message)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *telegram.Message) {
	if conv, ok := a.convs[m.Chat.ID]; ok && conv.Stage != 0 && !strings.HasPrefix(m.Text, "/") {
		a.continueConversation(ctx, m, conv)
		return
	}

	switch m.Text {
	case "/start":
		a.reply(ctx, m.Chat.ID, "Welcome! Use /add_channel to configure a channel, /status to see what's scheduled.", nil)
	case "/add_channel":
		a.convs[m.Chat.ID] = &conversationState{Stage: stageName, Channel: model.Channel{OwnerID: m.Chat.ID}}
		a.reply(ctx, m.Chat.ID, "What should the channel be called?", nil)
	case "/channels":
		a.listChannels(ctx, m.Chat.ID)
	case "/status":
		a.fleetStatus(ctx, m.Chat.ID)
	case "/run_now":
		a.runNow(ctx, m.Chat.ID)
	case "/pause":
		a.setAutomation(ctx, m.Chat.ID, false, "Automation paused.")
	case "/resume":
		a.setAutomation(ctx, m.Chat.ID, true, "Automation resumed.")
	case "/stop":
		a.setAutomation(ctx, m.Chat.ID, false, "Everything disabled. Use /resume to start again.")
	default:
		// ignore other messages
	}
}

func (a *App) reply(ctx context.Context, chatID int64, text string, keyboard [][]string) {
	if err := a.tg.SendMessage(ctx, chatID, text, keyboard); err != nil {
		a.logger.Warn().Err(err).Int64("chat", chatID).Msg("send message failed")
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func (a *App) listChannels(ctx context.Context, chatID int64) {
	channels, err := a.repo.GetByOwner(ctx, chatID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("list channels failed")
		return
	}
	if len(channels) == 0 {
		a.reply(ctx, chatID, "No channels yet. Use /add_channel.", nil)
		return
	}
	var b strings.Builder
	for _, ch := range channels {
		local := time.Now().In(ch.Location())
		st := schedule.ClassifyChannel(ch, minuteOfDay(local))
		line := fmt.Sprintf("%s (%s) — %s", ch.Name, ch.Platform, st.State)
		if st.Slot != nil {
			line += " " + st.Slot.Time
			if st.NextDay {
				line += " tomorrow"
			}
		}
		if !ch.AutomationEnabled {
			line += " [paused]"
		}
		b.WriteString(line + "\n")
	}
	a.reply(ctx, chatID, b.String(), nil)
}

func (a *App) fleetStatus(ctx context.Context, chatID int64) {
	channels, err := a.repo.GetByOwner(ctx, chatID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("fleet status failed")
		return
	}
	if len(channels) == 0 {
		a.reply(ctx, chatID, "No channels yet. Use /add_channel.", nil)
		return
	}
	names := map[string]string{}
	for _, ch := range channels {
		names[ch.ID] = ch.Name
	}
	fleet := schedule.Classify(channels, minuteOfDay(time.Now()))
	var b strings.Builder
	writePick := func(label string, p *schedule.Pick) {
		if p == nil {
			return
		}
		fmt.Fprintf(&b, "%s: %s at %02d:%02d\n", label, names[p.ChannelID], p.Minute/60, p.Minute%60)
	}
	writePick("Now playing", fleet.Current)
	writePick("Up next", fleet.Next)
	writePick("Just finished", fleet.Previous)
	if b.Len() == 0 {
		b.WriteString("Nothing scheduled.")
	}
	a.reply(ctx, chatID, b.String(), nil)
}

func (a *App) runNow(ctx context.Context, chatID int64) {
	channels, err := a.repo.GetByOwner(ctx, chatID)
	if err != nil || len(channels) == 0 {
		a.reply(ctx, chatID, "No channels yet. Use /add_channel.", nil)
		return
	}
	for _, ch := range channels {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.GenerationTimeout)
		res, err := a.gen.Generate(callCtx, ch)
		cancel()
		if err != nil {
			a.logger.Warn().Err(err).Str("channel", ch.ID).Msg("run_now generation failed")
			a.reply(ctx, chatID, ch.Name+": generation failed", nil)
			continue
		}
		a.reply(ctx, chatID, res.Content, nil)
	}
}

func (a *App) setAutomation(ctx context.Context, chatID int64, enabled bool, confirmation string) {
	channels, err := a.repo.GetByOwner(ctx, chatID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("set automation failed")
		return
	}
	for _, ch := range channels {
		ch.AutomationEnabled = enabled
		if err := a.repo.Save(ctx, ch); err != nil {
			a.logger.Warn().Err(err).Str("channel", ch.ID).Msg("save channel failed")
		}
	}
	a.reply(ctx, chatID, confirmation, nil)
}

func (a *App) continueConversation(ctx context.Context, m *telegram.Message, c *conversationState) {
	text := strings.TrimSpace(m.Text)
	switch c.Stage {
	case stageName:
		c.Channel.Name = text
		c.Stage = stagePlatform
		a.reply(ctx, m.Chat.ID, "Which platform is this channel for?", platformKeyboard)
	case stagePlatform:
		c.Channel.Platform = strings.ToLower(text)
		c.Stage = stageTopic
		a.reply(ctx, m.Chat.ID, "What topic should the scripts cover?", nil)
	case stageTopic:
		c.Channel.Topic = text
		c.Stage = stageTone
		a.reply(ctx, m.Chat.ID, "Pick a tone.", toneKeyboard)
	case stageTone:
		c.Channel.Tone = strings.ToLower(text)
		c.Stage = stageLanguage
		a.reply(ctx, m.Chat.ID, "Which language should the scripts be in?", nil)
	case stageLanguage:
		c.Channel.Language = text
		c.Stage = stageTimes
		a.reply(ctx, m.Chat.ID, "Send the daily times as HH:MM, comma separated (e.g. 09:00, 18:30).", nil)
	case stageTimes:
		slots, err := parseSlotTimes(text)
		if err != nil {
			a.reply(ctx, m.Chat.ID, "Could not read those times, use HH:MM separated by commas.", nil)
			return
		}
		c.Channel.Slots = slots
		c.Channel.AutomationEnabled = true
		c.Channel.DispatchEnabled = true
		if err := a.repo.Save(ctx, &c.Channel); err != nil {
			a.logger.Warn().Err(err).Msg("save channel failed")
			a.reply(ctx, m.Chat.ID, "Saving failed, try again later.", nil)
		} else {
			a.reply(ctx, m.Chat.ID, fmt.Sprintf("Channel %q saved with %d slot(s).", c.Channel.Name, len(slots)), nil)
		}
		delete(a.convs, m.Chat.ID)
	}
}

// parseSlotTimes turns "09:00, 18:30" into daily slots on every weekday.
func parseSlotTimes(text string) ([]model.Slot, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' })
	var slots []model.Slot
	for _, f := range fields {
		if _, err := model.ParseClockTime(f); err != nil {
			return nil, err
		}
		slots = append(slots, model.Slot{
			Enabled:       true,
			Days:          []int{0, 1, 2, 3, 4, 5, 6},
			Time:          f,
			PromptsPerRun: 1,
		})
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no times in %q", text)
	}
	return slots, nil
}
