package models

import "os"

// InstallTarget is one file placed by the installer.
type InstallTarget struct {
	Path string
	Mode os.FileMode
}

// InstallResult lists what the installer placed.
type InstallResult struct {
	BinaryPath     string
	Targets        []InstallTarget
	PanelRestarted bool
}
