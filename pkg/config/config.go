// Post-processing profile files
//
// Profiles use the printer.cfg layout: "[section]" headers followed by
// "key: value" or "key = value" options, '#' comments (';' only at the start
// of a line, values may hold G-code markers) and
// "[include <glob>]" directives resolved relative to the including file.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	perrors "toolpath-postproc/pkg/errors"
)

// Config provides access to a profile with access tracking.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string

	accessedSections map[string]struct{}
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}
}

// Load reads a profile file and everything it includes.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a profile from a string. Include directives are
// resolved relative to the working directory.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(strings.NewReader(data), "<string>", ".", make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return perrors.ConfigNotFoundError(path, err)
	}
	if visited[abs] {
		return perrors.ConfigParseError(path, 0, "recursive include")
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return perrors.ConfigNotFoundError(path, err)
	}
	defer f.Close()
	return c.parse(f, path, filepath.Dir(abs), visited)
}

func (c *Config) parse(r io.Reader, name, dir string, visited map[string]bool) error {
	var currentSection string
	var currentOptions map[string]string
	flush := func() {
		if currentSection != "" {
			c.addSection(currentSection, currentOptions)
		}
		currentSection = ""
		currentOptions = nil
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" || line[0] == ';' {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return perrors.ConfigParseError(name, lineNum, "empty section header")
			}
			if spec, ok := strings.CutPrefix(header, "include "); ok {
				if err := c.include(name, lineNum, dir, strings.TrimSpace(spec), visited); err != nil {
					return err
				}
				continue
			}
			currentSection = strings.ToLower(header)
			currentOptions = make(map[string]string)
			continue
		}

		if currentSection == "" {
			return perrors.ConfigParseError(name, lineNum, fmt.Sprintf("option %q outside of a section", line))
		}
		sep := strings.IndexAny(line, ":=")
		if sep <= 0 {
			return perrors.ConfigParseError(name, lineNum, fmt.Sprintf("expected 'key: value', got %q", line))
		}
		currentOptions[strings.TrimSpace(line[:sep])] = strings.TrimSpace(line[sep+1:])
	}
	flush()

	if err := scanner.Err(); err != nil {
		return perrors.ConfigParseError(name, lineNum, err.Error())
	}
	return nil
}

func (c *Config) include(name string, lineNum int, dir, spec string, visited map[string]bool) error {
	if spec == "" {
		return perrors.ConfigParseError(name, lineNum, "empty include")
	}
	glob := filepath.Join(dir, spec)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return perrors.ConfigParseError(name, lineNum, fmt.Sprintf("invalid include pattern %q", spec))
	}
	sort.Strings(matches)
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return perrors.ConfigParseError(name, lineNum, fmt.Sprintf("include file does not exist: %s", glob))
	}
	for _, m := range matches {
		if err := c.parseFile(m, visited); err != nil {
			return err
		}
	}
	return nil
}

// addSection adds a section, merging options into an existing one.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	if sec := c.GetSectionOptional(name); sec != nil {
		return sec, nil
	}
	return nil, ErrMissingSection(name)
}

// GetSectionOptional returns a Section if it exists, or nil if not.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.sections[name]
	if ok {
		c.accessedSections[name] = struct{}{}
	}
	return sec
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in file order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// GetPrefixSectionNames returns all section names that start with prefix.
func (c *Config) GetPrefixSectionNames(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			result = append(result, name)
		}
	}
	return result
}

// GetUnusedSections returns a list of sections that were not accessed.
func (c *Config) GetUnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for name := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// CheckUnused reports every section and option that nothing read.
func (c *Config) CheckUnused() []error {
	var errs []error
	for _, name := range c.GetUnusedSections() {
		errs = append(errs, perrors.ConfigValidationError(name, "", "unknown section"))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range c.order {
		if _, ok := c.accessedSections[name]; !ok {
			continue
		}
		unused := c.sections[name].GetUnusedOptions()
		sort.Strings(unused)
		for _, opt := range unused {
			errs = append(errs, perrors.ConfigValidationError(name, opt, "unknown option"))
		}
	}
	return errs
}

// Merge combines another Config into this one. Options from other win.
func (c *Config) Merge(other *Config) {
	other.mu.RLock()
	defer other.mu.RUnlock()

	for _, name := range other.order {
		c.addSection(name, other.sections[name].RawOptions())
	}
}
