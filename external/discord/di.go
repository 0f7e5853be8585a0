package discord

import (
	"time"

	"github.com/foxseedlab/sessiondesk/internal/config"
	discordpkg "github.com/foxseedlab/sessiondesk/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClient(c.DiscordToken), nil
	})
	do.Provide(injector, func(i do.Injector) (*discordpkg.Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, err
		}
		return discordpkg.NewNotifier(do.MustInvoke[discordpkg.Client](i), c.DiscordNotifyChannelID, loc), nil
	})
}
