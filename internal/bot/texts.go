package bot

import (
	"fmt"
	"os"

	"remindbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// Texts holds every user-visible reply string. Defaults are Russian; any
// field can be overridden from a YAML file so the bot can be re-worded or
// localized without a rebuild.
type Texts struct {
	CreateButton string `yaml:"createButton"`
	Welcome      string `yaml:"welcome"` // printf: first name
	AskMessage   string `yaml:"askMessage"`
	AskDate      string `yaml:"askDate"`
	AskTime      string `yaml:"askTime"`
	BadDate      string `yaml:"badDate"`
	BadTime      string `yaml:"badTime"`
	PastTime     string `yaml:"pastTime"`
	Saved        string `yaml:"saved"` // printf: message, date, time
	Nudge        string `yaml:"nudge"`
	Transient    string `yaml:"transientError"`
	Delivery     string `yaml:"delivery"` // printf: message
}

func DefaultTexts() *Texts {
	return &Texts{
		CreateButton: "➕ Создать напоминание",
		Welcome:      "Привет, %s! 👋\n\nЯ бот-напоминалка. Я отправлю тебе сообщение в нужный день и время.\n\nНажми кнопку ниже, чтобы создать напоминание.",
		AskMessage:   "📝 Напишите текст напоминания:",
		AskDate:      "📅 Введите дату в формате ДД.ММ.ГГГГ\nНапример: 25.03.2026",
		AskTime:      "⏰ Введите время в формате ЧЧ:ММ\nНапример: 09:30",
		BadDate:      "❌ Неверный формат даты. Попробуйте ещё раз.\nФормат: ДД.ММ.ГГГГ (например, 25.03.2026)",
		BadTime:      "❌ Неверный формат времени. Попробуйте ещё раз.\nФормат: ЧЧ:ММ (например, 09:30)",
		PastTime:     "❌ Эта дата и время уже прошли. Введите другое время:",
		Saved:        "✅ Напоминание сохранено!\n\n📝 <b>%s</b>\n📅 %s в %s\n\nЯ напомню тебе в нужное время!",
		Nudge:        "Нажми кнопку «➕ Создать напоминание» чтобы добавить напоминание.",
		Transient:    "⚠️ Что-то пошло не так. Попробуйте отправить сообщение ещё раз.",
		Delivery:     "🔔 Напоминание!\n\n<b>%s</b>",
	}
}

// LoadTexts layers a YAML override file over the defaults. An empty path
// returns the defaults; empty fields in the file keep their default value.
func LoadTexts(path string) (*Texts, error) {
	texts := DefaultTexts()
	if path == "" {
		return texts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read texts file %s: %w", path, err)
	}

	var override Texts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("cannot parse texts file %s: %w", path, err)
	}

	merge(texts, &override)
	return texts, nil
}

func merge(dst, src *Texts) {
	fields := []struct{ d, s *string }{
		{&dst.CreateButton, &src.CreateButton},
		{&dst.Welcome, &src.Welcome},
		{&dst.AskMessage, &src.AskMessage},
		{&dst.AskDate, &src.AskDate},
		{&dst.AskTime, &src.AskTime},
		{&dst.BadDate, &src.BadDate},
		{&dst.BadTime, &src.BadTime},
		{&dst.PastTime, &src.PastTime},
		{&dst.Saved, &src.Saved},
		{&dst.Nudge, &src.Nudge},
		{&dst.Transient, &src.Transient},
		{&dst.Delivery, &src.Delivery},
	}
	for _, f := range fields {
		if *f.s != "" {
			*f.d = *f.s
		}
	}
}

// Prompt returns the re-prompt text for a stage. The switch is exhaustive
// over the stage enum so every stage is guaranteed a prompt.
func (t *Texts) Prompt(stage domain.Stage) string {
	switch stage {
	case domain.StageWaitMessage:
		return t.AskMessage
	case domain.StageWaitDate:
		return t.AskDate
	case domain.StageWaitTime:
		return t.AskTime
	case domain.StageIdle:
		return t.Nudge
	default:
		return t.Nudge
	}
}
