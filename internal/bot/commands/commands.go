package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/mlindholt/discord-guildbot/internal/auction"
	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/clan"
	"github.com/mlindholt/discord-guildbot/internal/config"
	"github.com/mlindholt/discord-guildbot/internal/economy"
	"github.com/mlindholt/discord-guildbot/internal/inventory"
	"github.com/mlindholt/discord-guildbot/internal/milestone"
	"github.com/mlindholt/discord-guildbot/internal/mission"
	"github.com/mlindholt/discord-guildbot/internal/shop"
	"github.com/mlindholt/discord-guildbot/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Rewards paid for the raid commands. Class xp is only credited once the
// player has chosen a class.
const (
	raidCreateXP    = 30
	raidCreateCoins = 15
	raidHelpXP      = 20
	raidHelpCoins   = 10
	raidClassXP     = 10
)

// Handlers process Discord interactions.
type Handlers struct {
	economyMgr   *economy.Manager
	inventoryMgr *inventory.Manager
	clanMgr      *clan.Manager
	missionMgr   *mission.Manager
	milestoneMgr *milestone.Manager
	shopMgr      *shop.Manager
	auctionMgr   *auction.Manager
	catalog      *catalog.Catalog
	cfg          config.DiscordConfig
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(
	eco *economy.Manager,
	inv *inventory.Manager,
	clans *clan.Manager,
	missions *mission.Manager,
	milestones *milestone.Manager,
	shopMgr *shop.Manager,
	auctions *auction.Manager,
	cat *catalog.Catalog,
	cfg config.DiscordConfig,
	logger *slog.Logger,
	tp trace.TracerProvider,
) *Handlers {
	return &Handlers{
		economyMgr:   eco,
		inventoryMgr: inv,
		clanMgr:      clans,
		missionMgr:   missions,
		milestoneMgr: milestones,
		shopMgr:      shopMgr,
		auctionMgr:   auctions,
		catalog:      cat,
		cfg:          cfg,
		logger:       logger,
		tracer:       tp.Tracer("github.com/mlindholt/discord-guildbot/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	tagMinLen := 3
	return []*discordgo.ApplicationCommand{
		{
			Name:        "profile",
			Description: "Show your level, coins, class and clan",
		},
		{
			Name:        "raid-create",
			Description: "Log a raid you organized",
		},
		{
			Name:        "raid-help",
			Description: "Log a raid you helped with",
		},
		{
			Name:        "rate",
			Description: "Rate a player you raided with",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "player",
					Description: "The player to rate",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "stars",
					Description: "Rating from 1 to 5",
					Required:    true,
				},
			},
		},
		{
			Name:        "mentor",
			Description: "Log a mentoring session with a newer player",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "player",
					Description: "The player you mentored",
					Required:    true,
				},
			},
		},
		{
			Name:        "class",
			Description: "Choose your class (permanent)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "class",
					Description: "The class to commit to",
					Required:    true,
				},
			},
		},
		{
			Name:        "settings",
			Description: "Change your personal settings",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "auto-collect",
					Description: "Collect completed daily missions automatically",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "locale",
					Description: "Your shop locale, e.g. en or de",
					Required:    false,
				},
			},
		},
		{
			Name:        "missions",
			Description: "Show your current missions",
		},
		{
			Name:        "mission-collect",
			Description: "Collect a completed mission's reward",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mission",
					Description: "The mission to collect",
					Required:    true,
				},
			},
		},
		{
			Name:        "milestones",
			Description: "Show your milestone progress",
		},
		{
			Name:        "inventory",
			Description: "Show the items you own",
		},
		{
			Name:        "equip",
			Description: "Equip an item on your profile",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "item",
					Description: "The item to equip",
					Required:    true,
				},
			},
		},
		{
			Name:        "shop",
			Description: "Show the current shop rotation",
		},
		{
			Name:        "shop-buy",
			Description: "Buy an item from the shop",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "item",
					Description: "The item to buy",
					Required:    true,
				},
			},
		},
		{
			Name:        "clan-create",
			Description: "Found a new clan",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Clan name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tag",
					Description: "Short clan tag (3-5 characters)",
					Required:    true,
					MinLength:   &tagMinLen,
					MaxLength:   5,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "color",
					Description: "Clan color as #RRGGBB",
					Required:    true,
				},
			},
		},
		{
			Name:        "clan-invite",
			Description: "Invite a player to your clan",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "player",
					Description: "The player to invite",
					Required:    true,
				},
			},
		},
		{
			Name:        "clan-accept",
			Description: "Accept a clan invite",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "The clan whose invite to accept",
					Required:    true,
				},
			},
		},
		{
			Name:        "clan-kick",
			Description: "Kick a member from your clan (leader only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "player",
					Description: "The member to kick",
					Required:    true,
				},
			},
		},
		{
			Name:        "clan-leave",
			Description: "Leave your clan",
		},
		{
			Name:        "clan-dissolve",
			Description: "Dissolve your clan (leader only)",
		},
		{
			Name:        "clan-info",
			Description: "Show a clan's roster",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Clan name (defaults to your own clan)",
					Required:    false,
				},
			},
		},
		{
			Name:        "auction",
			Description: "Show the current auction",
		},
		{
			Name:        "auction-start",
			Description: "Start an item auction (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "item",
					Description: "The item to auction",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "duration",
					Description: "Auction duration in minutes (default: 60)",
					Required:    false,
				},
			},
		},
		{
			Name:        "bid",
			Description: "Place a bid on the current auction",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Bid amount in coins",
					Required:    true,
				},
			},
		},
		{
			Name:        "leaderboard",
			Description: "Show the top players by level",
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", i.ApplicationCommandData().Name)),
	)
	defer span.End()

	switch i.ApplicationCommandData().Name {
	case "profile":
		h.handleProfile(ctx, s, i)
	case "raid-create":
		h.handleRaid(ctx, s, i, store.CounterRaidsCreated, "raid_created", raidCreateXP, raidCreateCoins)
	case "raid-help":
		h.handleRaid(ctx, s, i, store.CounterRaidsHelped, "raid_helped", raidHelpXP, raidHelpCoins)
	case "rate":
		h.handleRate(ctx, s, i)
	case "mentor":
		h.handleMentor(ctx, s, i)
	case "class":
		h.handleClass(ctx, s, i)
	case "settings":
		h.handleSettings(ctx, s, i)
	case "missions":
		h.handleMissions(ctx, s, i)
	case "mission-collect":
		h.handleMissionCollect(ctx, s, i)
	case "milestones":
		h.handleMilestones(ctx, s, i)
	case "inventory":
		h.handleInventory(ctx, s, i)
	case "equip":
		h.handleEquip(ctx, s, i)
	case "shop":
		h.handleShop(ctx, s, i)
	case "shop-buy":
		h.handleShopBuy(ctx, s, i)
	case "clan-create":
		h.handleClanCreate(ctx, s, i)
	case "clan-invite":
		h.handleClanInvite(ctx, s, i)
	case "clan-accept":
		h.handleClanAccept(ctx, s, i)
	case "clan-kick":
		h.handleClanKick(ctx, s, i)
	case "clan-leave":
		h.handleClanLeave(ctx, s, i)
	case "clan-dissolve":
		h.handleClanDissolve(ctx, s, i)
	case "clan-info":
		h.handleClanInfo(ctx, s, i)
	case "auction":
		h.handleAuction(ctx, s, i)
	case "auction-start":
		h.handleAuctionStart(ctx, s, i)
	case "bid":
		h.handleBid(ctx, s, i)
	case "leaderboard":
		h.handleLeaderboard(ctx, s, i)
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) handleProfile(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := i.Member.User.ID
	p, err := h.economyMgr.GetOrCreate(ctx, playerID)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to load profile: %s", err))
		return
	}

	msg := fmt.Sprintf("**Level %d** (%d/%d xp) — **%d** coins", p.Level, p.XP, 100*p.Level, p.Coins)
	if p.ClassID != "" {
		msg += fmt.Sprintf("\nClass: **%s** (level %d)", p.ClassID, p.ClassLevels[p.ClassID])
	}
	if p.ClanID != "" {
		if c, err := h.clanMgr.Get(ctx, p.ClanID); err == nil {
			msg += fmt.Sprintf("\nClan: **%s** [%s]", c.Name, c.Tag)
		}
	}
	msg += fmt.Sprintf("\nRaids created: %d · helped: %d · reputation: %d",
		p.Counter(store.CounterRaidsCreated),
		p.Counter(store.CounterRaidsHelped),
		p.Counter(store.CounterReputation),
	)
	respond(s, i, msg)
}

// handleRaid covers both raid commands: credit the ledger, bump the counter,
// advance matching missions and re-check milestones.
func (h *Handlers) handleRaid(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, counter, eventType string, xp, coins int) {
	playerID := i.Member.User.ID

	res, err := h.economyMgr.Credit(ctx, playerID, xp, coins, eventType)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to log raid: %s", err))
		return
	}
	if err := h.economyMgr.IncrementCounter(ctx, playerID, counter, 1); err != nil {
		respond(s, i, fmt.Sprintf("Failed to log raid: %s", err))
		return
	}
	if p, err := h.economyMgr.GetOrCreate(ctx, playerID); err == nil && p.ClassID != "" {
		if _, err := h.economyMgr.CreditClassXP(ctx, playerID, p.ClassID, raidClassXP); err != nil {
			h.logger.ErrorContext(ctx, "crediting class xp", slog.String("error", err.Error()))
		}
	}
	if _, err := h.missionMgr.Advance(ctx, playerID, eventType, 1); err != nil {
		h.logger.ErrorContext(ctx, "advancing missions", slog.String("error", err.Error()))
	}
	if _, _, err := h.milestoneMgr.Check(ctx, playerID); err != nil {
		h.logger.ErrorContext(ctx, "checking milestones", slog.String("error", err.Error()))
	}

	msg := fmt.Sprintf("Logged! **+%d xp**, **+%d coins**", xp, coins)
	if res.LevelsGained > 0 {
		msg += fmt.Sprintf(" — you reached **level %d**!", res.Level)
	}
	respond(s, i, msg)
}

func (h *Handlers) handleRate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	target := opts[0].UserValue(s)
	stars := int(opts[1].IntValue())
	playerID := i.Member.User.ID

	if stars < 1 || stars > 5 {
		respond(s, i, "Rating must be between 1 and 5 stars.")
		return
	}
	if target.ID == playerID {
		respond(s, i, "You cannot rate yourself.")
		return
	}

	if err := h.economyMgr.IncrementCounter(ctx, target.ID, store.CounterReputation, stars); err != nil {
		respond(s, i, fmt.Sprintf("Failed to rate: %s", err))
		return
	}
	if err := h.economyMgr.IncrementCounter(ctx, target.ID, store.CounterTotalRatings, 1); err != nil {
		respond(s, i, fmt.Sprintf("Failed to rate: %s", err))
		return
	}
	if _, err := h.missionMgr.Advance(ctx, playerID, "rating_given", 1); err != nil {
		h.logger.ErrorContext(ctx, "advancing missions", slog.String("error", err.Error()))
	}
	respond(s, i, fmt.Sprintf("Rated **%s** with %d stars.", target.Username, stars))
}

func (h *Handlers) handleMentor(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := i.ApplicationCommandData().Options[0].UserValue(s)
	playerID := i.Member.User.ID

	if target.ID == playerID {
		respond(s, i, "You cannot mentor yourself.")
		return
	}
	if target.Bot {
		respond(s, i, "Bots do not need mentoring.")
		return
	}

	if err := h.economyMgr.IncrementCounter(ctx, playerID, store.CounterMentoredPlayers, 1); err != nil {
		respond(s, i, fmt.Sprintf("Failed to log mentoring: %s", err))
		return
	}
	if _, err := h.missionMgr.Advance(ctx, playerID, "mentoring_done", 1); err != nil {
		h.logger.ErrorContext(ctx, "advancing missions", slog.String("error", err.Error()))
	}
	if _, _, err := h.milestoneMgr.Check(ctx, playerID); err != nil {
		h.logger.ErrorContext(ctx, "checking milestones", slog.String("error", err.Error()))
	}
	respond(s, i, fmt.Sprintf("Logged a mentoring session with **%s**.", target.Username))
}

func (h *Handlers) handleClass(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	classID := strings.ToLower(i.ApplicationCommandData().Options[0].StringValue())
	playerID := i.Member.User.ID

	if err := h.economyMgr.SetClass(ctx, playerID, classID); err != nil {
		if errors.Is(err, economy.ErrClassAlreadySet) {
			respond(s, i, "You already committed to a class — the choice is permanent.")
			return
		}
		respond(s, i, fmt.Sprintf("Failed to set class: %s", err))
		return
	}
	respond(s, i, fmt.Sprintf("You are now a **%s**. There is no turning back.", classID))
}

func (h *Handlers) handleSettings(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := i.Member.User.ID

	var changed []string
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "auto-collect":
			on := opt.BoolValue()
			if err := h.economyMgr.SetAutoCollect(ctx, playerID, on); err != nil {
				respond(s, i, fmt.Sprintf("Failed to update settings: %s", err))
				return
			}
			changed = append(changed, fmt.Sprintf("auto-collect: %t", on))
		case "locale":
			locale := strings.ToLower(opt.StringValue())
			if err := h.economyMgr.SetLocale(ctx, playerID, locale); err != nil {
				respond(s, i, fmt.Sprintf("Failed to update settings: %s", err))
				return
			}
			changed = append(changed, "locale: "+locale)
		}
	}
	if len(changed) == 0 {
		respond(s, i, "Nothing to change. Pass `auto-collect` or `locale`.")
		return
	}
	respond(s, i, "Updated "+strings.Join(changed, ", "))
}

func (h *Handlers) handleMissions(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := i.Member.User.ID

	set, err := h.missionMgr.Assign(ctx, playerID)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to load missions: %s", err))
		return
	}

	msg := "**Daily missions:**\n"
	for _, inst := range set.Daily {
		msg += h.missionLine(inst)
	}
	if set.Weekly != nil {
		msg += "**Weekly mission:**\n" + h.missionLine(*set.Weekly)
	}
	respond(s, i, msg)
}

func (h *Handlers) missionLine(inst store.MissionInstance) string {
	name := inst.TemplateID
	if tmpl, ok := h.catalog.Template(inst.TemplateID); ok {
		name = tmpl.Name
	}
	status := fmt.Sprintf("%d/%d", inst.Progress, inst.Goal)
	switch {
	case inst.Collected:
		status = "collected"
	case inst.Completed:
		status = "**complete** — collect with `/mission-collect`"
	}
	return fmt.Sprintf("· %s (`%s`) — %s\n", name, inst.TemplateID, status)
}

func (h *Handlers) handleMissionCollect(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	templateID := i.ApplicationCommandData().Options[0].StringValue()
	playerID := i.Member.User.ID

	res, _, err := h.missionMgr.Collect(ctx, playerID, templateID)
	if err != nil {
		switch {
		case errors.Is(err, mission.ErrNoAssignment), errors.Is(err, mission.ErrNoSuchMission):
			respond(s, i, "You have no such mission. Check `/missions`.")
		case errors.Is(err, mission.ErrMissionNotComplete):
			respond(s, i, "That mission is not complete yet.")
		default:
			respond(s, i, fmt.Sprintf("Failed to collect: %s", err))
		}
		return
	}
	if !res.Collected {
		respond(s, i, "Already collected.")
		return
	}

	switch {
	case res.ItemID != "":
		name := res.ItemID
		if item, ok := h.catalog.Item(res.ItemID); ok {
			name = item.Name
		}
		respond(s, i, fmt.Sprintf("Collected! You received **%s**.", name))
	case res.LevelsGained > 0:
		respond(s, i, fmt.Sprintf("Collected! **+%d xp**, **+%d coins** — you leveled up!", res.XP, res.Coins))
	default:
		respond(s, i, fmt.Sprintf("Collected! **+%d xp**, **+%d coins**", res.XP, res.Coins))
	}
}

func (h *Handlers) handleMilestones(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := i.Member.User.ID

	msg := "**Milestones:**\n"
	for _, ms := range h.catalog.Milestones() {
		done, total, err := h.milestoneMgr.Progress(ctx, playerID, ms.ID)
		if err != nil {
			respond(s, i, fmt.Sprintf("Failed to load milestones: %s", err))
			return
		}
		msg += fmt.Sprintf("· %s %s (%d/%d)\n", ms.Name, milestone.RenderBar(done, total), done, total)
	}
	respond(s, i, msg)
}

func (h *Handlers) handleInventory(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := i.Member.User.ID

	inv, err := h.inventoryMgr.Get(ctx, playerID)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to load inventory: %s", err))
		return
	}
	if len(inv.Items) == 0 {
		respond(s, i, "You own nothing yet. Try the `/shop`.")
		return
	}

	msg := "**Your items:**\n"
	for _, id := range inv.Items {
		item, ok := h.catalog.Item(id)
		if !ok {
			continue
		}
		line := fmt.Sprintf("· %s (`%s`, %s)", item.Name, item.ID, item.Rarity)
		if inv.Equipped[item.Kind] == item.ID {
			line += " — equipped"
		}
		msg += line + "\n"
	}
	respond(s, i, msg)
}

func (h *Handlers) handleEquip(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	itemID := i.ApplicationCommandData().Options[0].StringValue()
	playerID := i.Member.User.ID

	if _, err := h.inventoryMgr.Equip(ctx, playerID, itemID); err != nil {
		switch {
		case errors.Is(err, inventory.ErrItemNotOwned):
			respond(s, i, "You do not own that item.")
		case errors.Is(err, inventory.ErrItemNotEquippable):
			respond(s, i, "That item cannot be equipped.")
		case errors.Is(err, inventory.ErrUnknownItem):
			respond(s, i, "No such item.")
		default:
			respond(s, i, fmt.Sprintf("Failed to equip: %s", err))
		}
		return
	}

	name := itemID
	if item, ok := h.catalog.Item(itemID); ok {
		name = item.Name
	}
	respond(s, i, fmt.Sprintf("Equipped **%s**.", name))
}

func (h *Handlers) handleShop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := i.Member.User.ID

	p, err := h.economyMgr.GetOrCreate(ctx, playerID)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to load shop: %s", err))
		return
	}

	w := h.shopMgr.Current(ctx, p.Locale)
	msg := fmt.Sprintf("**Shop** (rotates <t:%d:R>):\n", w.ExpiresAt.Unix())
	for _, id := range w.ItemIDs {
		item, ok := h.catalog.Item(id)
		if !ok {
			continue
		}
		line := fmt.Sprintf("· %s (`%s`, %s) — **%d** coins", item.Name, item.ID, item.Rarity, item.Price)
		if id == w.FeatureID {
			line = "⭐ " + line
		}
		msg += line + "\n"
	}
	respond(s, i, msg)
}

func (h *Handlers) handleShopBuy(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	itemID := i.ApplicationCommandData().Options[0].StringValue()
	playerID := i.Member.User.ID

	if _, err := h.shopMgr.Buy(ctx, playerID, itemID); err != nil {
		switch {
		case errors.Is(err, shop.ErrNotInShop):
			respond(s, i, "That item is not in the current rotation.")
		case errors.Is(err, economy.ErrInsufficientFunds):
			respond(s, i, "You cannot afford that.")
		default:
			respond(s, i, fmt.Sprintf("Purchase failed: %s", err))
		}
		return
	}
	if _, err := h.missionMgr.Advance(ctx, playerID, "shop_purchase", 1); err != nil {
		h.logger.ErrorContext(ctx, "advancing missions", slog.String("error", err.Error()))
	}

	name := itemID
	if item, ok := h.catalog.Item(itemID); ok {
		name = item.Name
	}
	respond(s, i, fmt.Sprintf("You bought **%s**.", name))
}

func (h *Handlers) handleClanCreate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	name := opts[0].StringValue()
	tag := opts[1].StringValue()
	color := opts[2].StringValue()
	playerID := i.Member.User.ID

	c, _, err := h.clanMgr.Create(ctx, playerID, name, tag, color)
	if err != nil {
		respond(s, i, clanErrorMessage(err))
		return
	}
	respond(s, i, fmt.Sprintf("Clan **%s** [%s] founded! Invite members with `/clan-invite`.", c.Name, c.Tag))
}

func (h *Handlers) handleClanInvite(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := i.ApplicationCommandData().Options[0].UserValue(s)
	playerID := i.Member.User.ID

	if _, err := h.clanMgr.Invite(ctx, playerID, target.ID, target.Bot); err != nil {
		respond(s, i, clanErrorMessage(err))
		return
	}
	respond(s, i, fmt.Sprintf("Invited **%s**. They can join with `/clan-accept`.", target.Username))
}

func (h *Handlers) handleClanAccept(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Options[0].StringValue()
	playerID := i.Member.User.ID

	c, _, err := h.clanMgr.Accept(ctx, playerID, name)
	if err != nil {
		respond(s, i, clanErrorMessage(err))
		return
	}
	respond(s, i, fmt.Sprintf("Welcome to **%s** [%s]!", c.Name, c.Tag))
}

func (h *Handlers) handleClanKick(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := i.ApplicationCommandData().Options[0].UserValue(s)
	playerID := i.Member.User.ID

	if _, err := h.clanMgr.Kick(ctx, playerID, target.ID); err != nil {
		respond(s, i, clanErrorMessage(err))
		return
	}
	respond(s, i, fmt.Sprintf("Kicked **%s** from the clan.", target.Username))
}

func (h *Handlers) handleClanLeave(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.clanMgr.Leave(ctx, i.Member.User.ID); err != nil {
		respond(s, i, clanErrorMessage(err))
		return
	}
	respond(s, i, "You left the clan.")
}

func (h *Handlers) handleClanDissolve(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if _, err := h.clanMgr.Dissolve(ctx, i.Member.User.ID); err != nil {
		respond(s, i, clanErrorMessage(err))
		return
	}
	respond(s, i, "The clan has been dissolved.")
}

func (h *Handlers) handleClanInfo(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	var c *store.Clan
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 {
		clans, err := h.clanMgr.List(ctx)
		if err != nil {
			respond(s, i, fmt.Sprintf("Failed to load clan: %s", err))
			return
		}
		name := opts[0].StringValue()
		for idx := range clans {
			if strings.EqualFold(clans[idx].Name, name) {
				c = &clans[idx]
				break
			}
		}
	} else {
		p, err := h.economyMgr.GetOrCreate(ctx, i.Member.User.ID)
		if err == nil && p.ClanID != "" {
			c, _ = h.clanMgr.Get(ctx, p.ClanID)
		}
	}
	if c == nil {
		respond(s, i, "No such clan.")
		return
	}

	msg := fmt.Sprintf("**%s** [%s] — %d member(s)\n", c.Name, c.Tag, len(c.Members))
	for _, m := range c.Members {
		if m == c.Leader {
			msg += fmt.Sprintf("· <@%s> (leader)\n", m)
		} else {
			msg += fmt.Sprintf("· <@%s>\n", m)
		}
	}
	respond(s, i, msg)
}

func (h *Handlers) handleAuction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	a, err := h.auctionMgr.Current(ctx)
	if err != nil {
		if errors.Is(err, auction.ErrNoAuction) {
			respond(s, i, "No auction is running.")
			return
		}
		respond(s, i, fmt.Sprintf("Failed to load auction: %s", err))
		return
	}

	name := a.ItemID
	if item, ok := h.catalog.Item(a.ItemID); ok {
		name = item.Name
	}
	msg := fmt.Sprintf("Auction for **%s** — ends <t:%d:R>. Minimum bid: %d.", name, a.EndsAt.Unix(), a.MinBid)
	if bidder, amount, ok := a.Highest(); ok {
		msg += fmt.Sprintf(" Highest bid: **%d** by <@%s>.", amount, bidder)
	} else {
		msg += " No bids yet."
	}
	respond(s, i, msg)
}

func (h *Handlers) handleAuctionStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !h.isAdmin(i) {
		respond(s, i, "Only admins can start auctions.")
		return
	}

	opts := i.ApplicationCommandData().Options
	itemID := opts[0].StringValue()
	duration := time.Hour
	if len(opts) > 1 {
		duration = time.Duration(opts[1].IntValue()) * time.Minute
	}

	a, err := h.auctionMgr.Start(ctx, i.Member.User.ID, itemID, duration)
	if err != nil {
		switch {
		case errors.Is(err, auction.ErrAuctionActive):
			respond(s, i, "An auction is already running.")
		case errors.Is(err, auction.ErrUnknownItem):
			respond(s, i, "No such item.")
		default:
			respond(s, i, fmt.Sprintf("Failed to start auction: %s", err))
		}
		return
	}

	name := a.ItemID
	if item, ok := h.catalog.Item(a.ItemID); ok {
		name = item.Name
	}
	respond(s, i, fmt.Sprintf("Auction started for **%s**! Minimum bid: %d, ends <t:%d:R>.", name, a.MinBid, a.EndsAt.Unix()))
}

func (h *Handlers) handleBid(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	amount := int(i.ApplicationCommandData().Options[0].IntValue())
	playerID := i.Member.User.ID

	if err := h.auctionMgr.Bid(ctx, playerID, amount); err != nil {
		switch {
		case errors.Is(err, auction.ErrNoAuction):
			respond(s, i, "No auction is running.")
		case errors.Is(err, auction.ErrAuctionExpired):
			respond(s, i, "The auction has already ended.")
		case errors.Is(err, auction.ErrBelowMinimum):
			respond(s, i, "Your bid is below the minimum.")
		case errors.Is(err, auction.ErrBidTooLow):
			respond(s, i, "Someone already bid at least that much.")
		case errors.Is(err, economy.ErrInsufficientFunds):
			respond(s, i, "You cannot cover that bid.")
		default:
			respond(s, i, fmt.Sprintf("Bid failed: %s", err))
		}
		return
	}
	respond(s, i, fmt.Sprintf("Bid of **%d coins** placed.", amount))
}

func (h *Handlers) handleLeaderboard(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	players, err := h.economyMgr.List(ctx)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to load leaderboard: %s", err))
		return
	}
	if len(players) == 0 {
		respond(s, i, "No players yet.")
		return
	}
	if len(players) > 10 {
		players = players[:10]
	}

	msg := "**Leaderboard:**\n"
	for idx, p := range players {
		msg += fmt.Sprintf("%d. <@%s> — level %d (%d xp)\n", idx+1, p.ID, p.Level, p.XP)
	}
	respond(s, i, msg)
}

// isAdmin reports whether the invoking member carries the configured admin
// role.
func (h *Handlers) isAdmin(i *discordgo.InteractionCreate) bool {
	if h.cfg.AdminRole == "" {
		return false
	}
	for _, r := range i.Member.Roles {
		if r == h.cfg.AdminRole {
			return true
		}
	}
	return false
}

// clanErrorMessage maps clan manager errors to user-facing text.
func clanErrorMessage(err error) string {
	switch {
	case errors.Is(err, clan.ErrAlreadyInClan):
		return "You are already in a clan."
	case errors.Is(err, clan.ErrEligibilityNotMet):
		return "You need more raid experience before founding a clan."
	case errors.Is(err, clan.ErrInvalidColor):
		return "Color must be in #RRGGBB form."
	case errors.Is(err, clan.ErrInvalidTag):
		return "Tag must be 3 to 5 characters."
	case errors.Is(err, clan.ErrInappropriateName):
		return "That clan name is not allowed."
	case errors.Is(err, store.ErrNameTaken):
		return "That clan name is taken."
	case errors.Is(err, store.ErrTagTaken):
		return "That clan tag is taken."
	case errors.Is(err, clan.ErrNotInClan):
		return "You are not in a clan."
	case errors.Is(err, clan.ErrNotLeader):
		return "Only the clan leader can do that."
	case errors.Is(err, clan.ErrTargetIsSelf):
		return "You cannot invite yourself."
	case errors.Is(err, clan.ErrTargetIsBot):
		return "Bots cannot join clans."
	case errors.Is(err, clan.ErrTargetAlreadyInClan):
		return "That player is already in a clan."
	case errors.Is(err, clan.ErrNoSuchInvite):
		return "You have no invite from that clan."
	case errors.Is(err, clan.ErrClanGone):
		return "That clan no longer exists."
	case errors.Is(err, clan.ErrCannotKickSelf):
		return "You cannot kick yourself. Use `/clan-leave` or `/clan-dissolve`."
	case errors.Is(err, clan.ErrTargetNotMember):
		return "That player is not in your clan."
	case errors.Is(err, clan.ErrLeaderCannotLeave):
		return "The leader cannot leave. Use `/clan-dissolve`."
	default:
		return fmt.Sprintf("Clan operation failed: %s", err)
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
