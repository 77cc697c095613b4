// Package resources embeds the desktop integration files the installer
// places into the XDG data directories.
package resources

import "embed"

// Resource file names inside Files.
const (
	DesktopEntry = "app.desktop"
	Icon         = "icon.svg"
	Metainfo     = "app.metainfo.xml"
)

// Files holds the desktop entry, icon and metainfo.
//
//go:embed app.desktop icon.svg app.metainfo.xml
var Files embed.FS
