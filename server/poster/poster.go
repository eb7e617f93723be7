package poster

import (
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/formatter"
)

// Poster posts new alerts to Mattermost channels as the plugin bot.
type Poster struct {
	api    plugin.API
	botID  string
	source string
}

// New creates a new Poster. source is shown in the attachment footer.
func New(api plugin.API, botID, source string) *Poster {
	return &Poster{
		api:    api,
		botID:  botID,
		source: source,
	}
}

// PostAlert posts a formatted alert to a Mattermost channel as a single post.
func (p *Poster) PostAlert(a alert.Alert, channelID string) error {
	attachment := formatter.FormatAlert(a, p.source)

	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		Type:      model.PostTypeSlackAttachment,
		Props:     model.StringInterface{},
	}
	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})

	if _, err := p.api.CreatePost(post); err != nil {
		return err
	}
	return nil
}
