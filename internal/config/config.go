// Package config loads the INI-style grokmirror configuration file.
// original_source/ reads it with Python's ConfigParser and
// ExtendedInterpolation; we keep the same on-disk section layout for
// operator familiarity but decode it into enumerated Go structs with
// gopkg.in/ini.v1, validated once at startup (spec.md §9 "Dynamic
// configuration → explicit schema").
package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

// Core holds settings shared by every subcommand.
type Core struct {
	Toplevel     string `ini:"toplevel"`
	Objstore     string `ini:"objstore"`
	LogFile      string `ini:"log"`
	IgnoreGlobs  []string
	IgnoreGlobsRaw string `ini:"ignore"`
	// ObjstoreUsesPlumbing replaces the porcelain "git fetch" used to pull
	// a fork-family member's objects into its objstore with a direct
	// hardlink-and-update-ref copy (spec.md §4.4, §4.6), avoiding a full
	// object negotiation between two repos that already share a
	// filesystem.
	ObjstoreUsesPlumbing bool `ini:"objstore_uses_plumbing"`
}

// Remote holds the origin connection settings used by pull/dumb-pull.
type Remote struct {
	Site          string `ini:"site"`
	ManifestURL   string `ini:"manifest"`
	UseCheckUsername string `ini:"check_username"`
	// ManifestCommand, if set, replaces the HTTP fetch with running this
	// command (e.g. an ssh+cat one-liner) and reading the manifest JSON
	// from its stdout. Exit code 127 means "unchanged", 1 is fatal, any
	// other non-zero is a non-fatal skip for this pass.
	ManifestCommand string `ini:"manifest_command"`
}

// Pull holds pull-engine tunables (spec.md §4.6).
type Pull struct {
	Refresh              int    `ini:"refresh"`
	PullThreads          int    `ini:"pull_threads"`
	Purge                bool   `ini:"purge"`
	PurgeQuorum          float64 `ini:"purge_quorum"`
	PurgeThreshold        int    `ini:"purge_threshold"`
	ForcePurge           bool   `ini:"force_purge"`
	Socket               string `ini:"socket"`
	DebounceSeconds       int    `ini:"debounce"`
	PostUpdateHook        string `ini:"post_update_hook"`
	PostCloneCompleteHook string `ini:"post_clone_complete_hook"`
	PostWorkCompleteHook  string `ini:"post_work_complete_hook"`
	ShutdownGraceSeconds  int    `ini:"shutdown_grace"`
}

// Fsck holds fsck/repack-controller tunables (spec.md §4.5).
type Fsck struct {
	LooseObjThreshold  int      `ini:"loose_obj_threshold"`
	PacksThreshold     int      `ini:"packs_threshold"`
	FullRepackDays     int      `ini:"full_repack_days"`
	FsckFrequencyDays  int      `ini:"fsck_frequency"`
	PruneExpire        string   `ini:"prune_expire"`
	Precious           string   `ini:"precious"` // "yes" | "no" | "always"
	Commitgraph        bool     `ini:"commitgraph"`
	ExtraRepackFlagsFull []string
	ExtraRepackFlagsFullRaw string `ini:"extra_repack_flags_full"`
	RecloneOnErrors    []string
	RecloneOnErrorsRaw string `ini:"reclone_on_errors"`
	ReportTo           string `ini:"report_to"`
}

// PIPiper holds the public-inbox piping section. This is out of scope per
// spec.md §12 (Non-goals name it explicitly); the struct exists only so
// that an operator's existing config file parses without an "unknown
// section" warning, and nothing in this module reads its fields.
type PIPiper struct {
	Enabled bool `ini:"enabled"`
}

// Config is the fully decoded, validated configuration.
type Config struct {
	Core    Core
	Remote  Remote
	Pull    Pull
	Fsck    Fsck
	PIPiper PIPiper

	// UnknownKeys surfaces keys in a recognized section that map onto no
	// known field (as "section.key") and unrecognized sections (as
	// "section:name"), preserved for Warn-level logging rather than being
	// silently ignored (spec.md §9).
	UnknownKeys []string
}

var knownSections = map[string]bool{
	"core": true, "remote": true, "pull": true, "fsck": true, "pi-piper": true,
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, errkind.ErrConfigInvalid)
	}

	cfg := &Config{
		Pull: Pull{
			Refresh:              300,
			PullThreads:          0, // 0 means "default to NumCPU, capped at 10" -- resolved by caller
			PurgeQuorum:          0.05,
			PurgeThreshold:       1,
			DebounceSeconds:      5,
			ShutdownGraceSeconds: 60,
		},
		Fsck: Fsck{
			LooseObjThreshold: 1200,
			PacksThreshold:    20,
			FullRepackDays:    65,
			FsckFrequencyDays: 30,
			PruneExpire:       "now",
			Precious:          "yes",
			Commitgraph:       true,
			RecloneOnErrors: []string{
				"fatal: bad object",
				"fatal: bad tree",
				"fatal: bad commit",
				"missing blob",
				"error: git upload-pack: not our ref",
			},
		},
	}

	for _, sec := range f.Sections() {
		name := strings.ToLower(sec.Name())
		if name == ini.DefaultSection {
			continue
		}
		if !knownSections[name] {
			cfg.UnknownKeys = append(cfg.UnknownKeys, "section:"+sec.Name())
			continue
		}
		var target any
		switch name {
		case "core":
			target = &cfg.Core
		case "remote":
			target = &cfg.Remote
		case "pull":
			target = &cfg.Pull
		case "fsck":
			target = &cfg.Fsck
		case "pi-piper":
			target = &cfg.PIPiper
		}
		if err := sec.MapTo(target); err != nil {
			return nil, fmt.Errorf("decoding [%s]: %w", sec.Name(), errkind.ErrConfigInvalid)
		}
		for _, key := range sec.Keys() {
			if !knownKey(name, key.Name()) {
				cfg.UnknownKeys = append(cfg.UnknownKeys, fmt.Sprintf("%s.%s", name, key.Name()))
			}
		}
	}

	cfg.Core.IgnoreGlobs = splitList(cfg.Core.IgnoreGlobsRaw)
	cfg.Fsck.ExtraRepackFlagsFull = splitList(cfg.Fsck.ExtraRepackFlagsFullRaw)
	if raw := strings.TrimSpace(cfg.Fsck.RecloneOnErrorsRaw); raw != "" {
		cfg.Fsck.RecloneOnErrors = splitLines(raw)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	fields := strings.Fields(raw)
	return fields
}

func splitLines(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func validate(cfg *Config) error {
	if cfg.Core.Toplevel == "" {
		return fmt.Errorf("[core] toplevel is required: %w", errkind.ErrConfigInvalid)
	}
	if cfg.Pull.PurgeQuorum < 0 || cfg.Pull.PurgeQuorum > 1 {
		return fmt.Errorf("[pull] purge_quorum must be between 0 and 1: %w", errkind.ErrConfigInvalid)
	}
	if cfg.Fsck.Precious != "yes" && cfg.Fsck.Precious != "no" && cfg.Fsck.Precious != "always" {
		return fmt.Errorf("[fsck] precious must be yes, no, or always: %w", errkind.ErrConfigInvalid)
	}
	return nil
}

// knownKey lists the ini tags mapped by MapTo for each section, so
// anything else found in a recognized section is still flagged as
// unknown rather than silently dropped.
func knownKey(section, key string) bool {
	key = strings.ToLower(key)
	switch section {
	case "core":
		switch key {
		case "toplevel", "objstore", "log", "ignore", "objstore_uses_plumbing":
			return true
		}
	case "remote":
		switch key {
		case "site", "manifest", "check_username", "manifest_command":
			return true
		}
	case "pull":
		switch key {
		case "refresh", "pull_threads", "purge", "purge_quorum", "purge_threshold",
			"force_purge", "socket", "debounce", "post_update_hook",
			"post_clone_complete_hook", "post_work_complete_hook",
			"shutdown_grace":
			return true
		}
	case "fsck":
		switch key {
		case "loose_obj_threshold", "packs_threshold", "full_repack_days",
			"fsck_frequency", "prune_expire", "precious", "commitgraph",
			"extra_repack_flags_full", "reclone_on_errors", "report_to":
			return true
		}
	case "pi-piper":
		switch key {
		case "enabled":
			return true
		}
	}
	return false
}
