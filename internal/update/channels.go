package update

import (
	"strings"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

// Channel is one of the closed set of driver release channels.
type Channel string

const (
	ChannelLatest   Channel = "latest"
	ChannelPsiloc   Channel = "psiloc"
	ChannelBeta     Channel = "beta"
	ChannelPrevious Channel = "previous"
	ChannelUbuntu   Channel = "ubuntu"
)

// aliasTable maps user-supplied version aliases onto channels. Lookup is
// case-insensitive. Anything outside this table is rejected.
var aliasTable = map[string]Channel{
	"latest":   ChannelLatest,
	"psiloc":   ChannelPsiloc,
	"beta":     ChannelBeta,
	"previous": ChannelPrevious,
	"old":      ChannelPrevious,
	"1":        ChannelPrevious,
	"ubuntu":   ChannelUbuntu,
}

// channelDirs maps a channel to its directory in the release repository.
var channelDirs = map[Channel]string{
	ChannelLatest:   "Latest",
	ChannelPsiloc:   "Psiloc",
	ChannelBeta:     "Beta",
	ChannelPrevious: "Previous",
	ChannelUbuntu:   "Ubuntu",
}

// NormalizeChannel resolves a free-form alias to a canonical channel.
func NormalizeChannel(alias string) (Channel, error) {
	ch, ok := aliasTable[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return "", errors.ValidationError("unsupported channel: " + alias)
	}
	return ch, nil
}

// Dir returns the channel's directory name in the release repository.
func (c Channel) Dir() string {
	return channelDirs[c]
}
