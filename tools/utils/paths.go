package utils

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

func Expanduser(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		usr, err := user.Current()
		if err == nil {
			home = usr.HomeDir
		}
	}
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	path = strings.ReplaceAll(path, string(os.PathSeparator), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "~" {
		parts[0] = home
	} else {
		uname := parts[0][1:]
		if uname != "" {
			u, err := user.Lookup(uname)
			if err == nil && u.HomeDir != "" {
				parts[0] = u.HomeDir
			}
		}
	}
	return strings.Join(parts, string(os.PathSeparator))
}

func Abspath(path string) string {
	q, err := filepath.Abs(path)
	if err == nil {
		return q
	}
	return path
}

var config_dirs = map[string]string{}

// ConfigDirForName returns the directory holding name.conf, the
// <NAME>_CONFIG_DIRECTORY environment variable overrides the XDG lookup
func ConfigDirForName(name string) string {
	if ans := config_dirs[name]; ans != "" {
		return ans
	}
	conf_name := name + ".conf"
	var ans string
	if q := os.Getenv(strings.ToUpper(name) + "_CONFIG_DIRECTORY"); q != "" {
		ans = Abspath(Expanduser(q))
	} else {
		var locations []string
		if os.Getenv("XDG_CONFIG_HOME") != "" {
			locations = append(locations, os.Getenv("XDG_CONFIG_HOME"))
		}
		locations = append(locations, Expanduser("~/.config"))
		if runtime.GOOS == "darwin" {
			locations = append(locations, Expanduser("~/Library/Preferences"))
		}
		for _, loc := range locations {
			q := filepath.Join(loc, name)
			if _, err := os.Stat(filepath.Join(q, conf_name)); err == nil {
				ans = q
				break
			}
		}
		if ans == "" {
			ans = filepath.Join(locations[0], name)
		}
	}
	config_dirs[name] = ans
	return ans
}
