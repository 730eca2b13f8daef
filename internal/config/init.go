package config

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

const starterConfig = `# gundeck configuration
platforms:
  ps2:
    config_path: /home/sinden/Lightgun/PS2/LightgunMono.exe.config
    install_dir: /home/sinden/Lightgun/PS2
  ps1:
    config_path: /home/sinden/Lightgun/PS1/LightgunMono.exe.config
    install_dir: /home/sinden/Lightgun/PS1

default_platform: ps2

remote:
  owner: th3drk0ne
  repo: sindenps
  branch: main

services:
  - lightgun.service
  - lightgun-monitor.service

driver_log: /home/sinden/Lightgun/log/sinden.log
version_file: /home/sinden/Lightgun/VERSION
owner_account: sinden

http:
  port: 5000
`

// WriteStarter writes a starter configuration file. With force, an existing
// file is overwritten.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.ConflictError(fmt.Sprintf("configuration file already exists: %s", path))
		}
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityError, "failed to write configuration file")
	}
	return nil
}
