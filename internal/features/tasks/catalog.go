// Package tasks: catalog.go содержит каталог заданий кампании.
package tasks

import (
	"github.com/shopspring/decimal"
)

// Catalog: упорядоченный набор заданий.
type Catalog struct {
	order []string
	defs  map[string]Definition
}

// NewCatalog собирает каталог в заданном порядке.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if _, ok := c.defs[d.ID]; !ok {
			c.order = append(c.order, d.ID)
		}
		c.defs[d.ID] = d
	}
	return c
}

// Get возвращает задание по id.
func (c *Catalog) Get(id string) (Definition, bool) {
	d, ok := c.defs[id]
	return d, ok
}

// List возвращает задания в порядке каталога.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

// IDsByMode возвращает id заданий с данным режимом в порядке каталога.
func (c *Catalog) IDsByMode(mode Mode) []string {
	var out []string
	for _, id := range c.order {
		if c.defs[id].Mode == mode {
			out = append(out, id)
		}
	}
	return out
}

// Идентификаторы заданий каталога по умолчанию.
const (
	TaskIdentity  = "identity"
	TaskDiscord   = "discord"
	TaskIMEIShare = "imei-share"
	TaskIMEIVideo = "imei-video"
	TaskIMEIBuy   = "imei-buy"
)

// DefaultCatalog: задания кампании BitBee.
//
//	identity   +10 HONEY         верификация личности
//	discord    +5 HONEY          после identity
//	imei-share +0.00000109 WBTC  ссылка на пост, проверка ревьюером
//	imei-video +0.00000109 WBTC  email, 3500 мест
//	imei-buy   +0.00000549 WBTC  ссылка на пост в Instagram, 300 мест
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Definition{
			ID:     TaskIdentity,
			Title:  "Пройти верификацию личности",
			Asset:  "HONEY",
			Amount: decimal.NewFromInt(10),
			Mode:   ModeInstantCallback,
		},
		Definition{
			ID:           TaskDiscord,
			Title:        "Вступить в сообщество Discord",
			Asset:        "HONEY",
			Amount:       decimal.NewFromInt(5),
			Mode:         ModeInstantCallback,
			Prerequisite: TaskIdentity,
		},
		Definition{
			ID:           TaskIMEIShare,
			Title:        "Поделиться постом IMEI в соцсетях",
			Asset:        "WBTC",
			Amount:       decimal.RequireFromString("0.00000109"),
			Mode:         ModeURLReview,
			Prerequisite: TaskIdentity,
			Platforms:    []string{"facebook", "instagram", "threads", "line", "x"},
		},
		Definition{
			ID:               TaskIMEIVideo,
			Title:            "Посмотреть видео IMEI и оставить email",
			Asset:            "WBTC",
			Amount:           decimal.RequireFromString("0.00000109"),
			Mode:             ModeEmailCapture,
			ParticipantLimit: 3500,
		},
		Definition{
			ID:               TaskIMEIBuy,
			Title:            "Купить IMEI и опубликовать пост",
			Asset:            "WBTC",
			Amount:           decimal.RequireFromString("0.00000549"),
			Mode:             ModeURLReview,
			Platforms:        []string{"instagram"},
			ParticipantLimit: 300,
		},
	)
}
