// License: GPLv3 Copyright: 2023, Kovid Goyal, <kovid at kovidgoyal.net>

package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

const SYSTEM_CONF = "/etc/xdg"

func StringToBool(x string) bool {
	x = strings.ToLower(x)
	return x == "y" || x == "yes" || x == "true"
}

// StringToDuration accepts Go duration syntax or a bare number of seconds
func StringToDuration(x string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(x, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(x)
}

type ConfigLine struct {
	Src_file, Line string
	Line_number    int
	Err            error
}

func (self ConfigLine) String() string {
	return fmt.Sprintf("%s:%d: %s (%s)", self.Src_file, self.Line_number, self.Line, self.Err)
}

type ConfigParser struct {
	LineHandler     func(key, val string) error
	CommentsHandler func(line string) error
	SourceHandler   func(text, path string)

	bad_lines     []ConfigLine
	seen_includes map[string]bool
	override_env  []string
}

type Scanner interface {
	Scan() bool
	Text() string
	Err() error
}

func (self *ConfigParser) BadLines() []ConfigLine {
	return self.bad_lines
}

var key_pat = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9_-]*)\s+(.+)$`)
})

func (self *ConfigParser) parse(scanner Scanner, name, base_path_for_includes string, depth int) error {
	if self.seen_includes[name] { // avoid include loops
		return nil
	}
	self.seen_includes[name] = true

	recurse := func(r io.Reader, nname, base_path_for_includes string) error {
		if depth > 32 {
			return fmt.Errorf("Too many nested include directives while processing config file: %s", name)
		}
		escanner := bufio.NewScanner(r)
		return self.parse(escanner, nname, base_path_for_includes, depth+1)
	}

	make_absolute := func(path string) (string, error) {
		if path == "" {
			return "", fmt.Errorf("Empty include paths not allowed")
		}
		path = utils.Expanduser(path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(base_path_for_includes, path)
		}
		return path, nil
	}

	lnum := 0
	for scanner.Scan() {
		lnum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '#' {
			if self.CommentsHandler != nil {
				if err := self.CommentsHandler(line); err != nil {
					self.bad_lines = append(self.bad_lines, ConfigLine{Src_file: name, Line: line, Line_number: lnum, Err: err})
				}
			}
			continue
		}
		m := key_pat().FindStringSubmatch(line)
		if len(m) < 3 {
			self.bad_lines = append(self.bad_lines, ConfigLine{Src_file: name, Line: line, Line_number: lnum, Err: fmt.Errorf("Invalid config line: %#v", line)})
			continue
		}
		key, val := m[1], strings.TrimSpace(m[2])
		switch key {
		default:
			if err := self.LineHandler(key, val); err != nil {
				self.bad_lines = append(self.bad_lines, ConfigLine{Src_file: name, Line: line, Line_number: lnum, Err: err})
			}
		case "include", "globinclude", "envinclude":
			var includes []string
			switch key {
			case "include":
				if aval, err := make_absolute(val); err == nil {
					includes = []string{aval}
				}
			case "globinclude":
				if aval, err := make_absolute(val); err == nil {
					if matches, err := doublestar.FilepathGlob(aval); err == nil {
						includes = matches
					}
				}
			case "envinclude":
				env := self.override_env
				if env == nil {
					env = os.Environ()
				}
				for _, x := range env {
					key, eval, _ := strings.Cut(x, "=")
					if is_match, err := doublestar.Match(val, key); is_match && err == nil {
						if err := recurse(strings.NewReader(eval), "<env var: "+key+">", base_path_for_includes); err != nil {
							return err
						}
					}
				}
			}
			for _, incpath := range includes {
				raw, err := os.ReadFile(incpath)
				if err == nil {
					if err := recurse(bytes.NewReader(raw), incpath, filepath.Dir(incpath)); err != nil {
						return err
					}
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("Failed to process include %#v with error: %w", incpath, err)
				}
			}
		}
	}
	return scanner.Err()
}

func (self *ConfigParser) ParseFiles(paths ...string) error {
	for _, path := range paths {
		path = utils.Abspath(path)
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		self.seen_includes = make(map[string]bool)
		if err = self.parse(bufio.NewScanner(bytes.NewReader(raw)), path, filepath.Dir(path), 0); err != nil {
			return err
		}
		if self.SourceHandler != nil {
			self.SourceHandler(string(raw), path)
		}
	}
	return nil
}

// LoadConfig reads <name>.conf from the system directory and then from either
// the explicit paths or the user config directory, missing files are not an
// error. Overrides are key=value strings applied last.
func (self *ConfigParser) LoadConfig(name string, paths []string, overrides []string) (err error) {
	conf_name := name + ".conf"
	add_if_exists := func(q string) {
		err = self.ParseFiles(q)
		if err != nil && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
	}
	if add_if_exists(filepath.Join(SYSTEM_CONF, name, conf_name)); err != nil {
		return err
	}
	if len(paths) > 0 {
		for _, path := range paths {
			if add_if_exists(path); err != nil {
				return err
			}
		}
	} else {
		if add_if_exists(filepath.Join(utils.ConfigDirForName(name), conf_name)); err != nil {
			return err
		}
	}
	if len(overrides) > 0 {
		return self.ParseOverrides(overrides...)
	}
	return
}

type LinesScanner struct {
	lines []string
}

func (self *LinesScanner) Scan() bool {
	return len(self.lines) > 0
}

func (self *LinesScanner) Text() string {
	ans := self.lines[0]
	self.lines = self.lines[1:]
	return ans
}

func (self *LinesScanner) Err() error {
	return nil
}

func (self *ConfigParser) ParseOverrides(overrides ...string) error {
	lines := make([]string, len(overrides))
	for i, x := range overrides {
		lines[i] = strings.Replace(x, "=", " ", 1)
	}
	self.seen_includes = make(map[string]bool)
	cwd, _ := os.Getwd()
	return self.parse(&LinesScanner{lines: lines}, "<overrides>", cwd, 0)
}

// ReloadConfigInRunning sends SIGUSR1 to every other process whose executable
// is named exe_name, returning how many were signalled
func ReloadConfigInRunning(exe_name string) (count int, err error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, err
	}
	me := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == me {
			continue
		}
		if name, nerr := p.Name(); nerr == nil && name == exe_name {
			if serr := p.SendSignal(unix.SIGUSR1); serr == nil {
				count++
			}
		}
	}
	return
}
