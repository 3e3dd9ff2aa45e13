package assets

import "embed"

// Files holds the hook scripts, slash commands and config template that the
// installer places under the assistant's config directory.
//
//go:embed hooks/*.sh commands/*.md config/session-config.template
var Files embed.FS
