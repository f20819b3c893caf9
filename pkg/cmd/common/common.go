package common

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/maxgio92/xprof/internal/config"
	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/internal/utils"
	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/locate"
	"github.com/maxgio92/xprof/pkg/partition"
	"github.com/maxgio92/xprof/pkg/query"
	"github.com/maxgio92/xprof/pkg/session"
	"github.com/maxgio92/xprof/pkg/symtable"
)

// DaemonPid returns the pid of the running recorder, or zero.
func DaemonPid() int {
	pid, err := utils.ReadPidFile(settings.PidFile)
	if err != nil || !utils.ProcessAlive(pid) {
		return 0
	}
	return pid
}

func IsDaemonRunning() bool {
	return DaemonPid() != 0
}

// SamplesDir returns dir, or the samples directory of the environment
// when dir is empty.
func SamplesDir(dir string) string {
	if dir != "" {
		return dir
	}
	if v := strings.TrimSpace(os.Getenv(config.EnvSamplesDir)); v != "" {
		return v
	}
	return settings.SamplesDir
}

// SessionFlags are the flags selecting and reading sample files.
type SessionFlags struct {
	SamplesDir        string
	Merge             string
	ImagePaths        []string
	SymIncludePattern string
	SymExcludePattern string
}

func (f *SessionFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.SamplesDir, "samples-dir", "", "Directory holding the sessions (default $"+config.EnvSamplesDir+" or "+settings.SamplesDir+")")
	fs.StringVarP(&f.Merge, "merge", "m", "", "Comma separated dimensions to merge (cpu, lib, tid, tgid, unitmask, all)")
	fs.StringSliceVarP(&f.ImagePaths, "image-path", "p", nil, "Directories to search binaries in when missing from their recorded path")
	fs.StringVar(&f.SymIncludePattern, "include", "", "Regex pattern to include function symbol names")
	fs.StringVar(&f.SymExcludePattern, "exclude", "", "Regex pattern to exclude function symbol names")
}

// Open parses the query tokens and opens the matching session.
func (f *SessionFlags) Open(tokens []string, logger log.Logger, opts ...session.Option) (*session.Session, error) {
	q, err := query.Parse(tokens)
	if err != nil {
		return nil, err
	}
	merge, err := partition.ParseMergeOption(f.Merge)
	if err != nil {
		return nil, err
	}
	loc, err := locate.New(locate.WithPaths(f.ImagePaths...), locate.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var symOpts []symtable.Option
	if f.SymIncludePattern != "" {
		re, err := regexp.Compile(f.SymIncludePattern)
		if err != nil {
			return nil, fault.UsageErr("common.Open", errors.Wrap(err, "invalid include pattern"))
		}
		symOpts = append(symOpts, symtable.WithSymPatternInclude(re))
	}
	if f.SymExcludePattern != "" {
		re, err := regexp.Compile(f.SymExcludePattern)
		if err != nil {
			return nil, fault.UsageErr("common.Open", errors.Wrap(err, "invalid exclude pattern"))
		}
		symOpts = append(symOpts, symtable.WithSymPatternExclude(re))
	}

	return session.Open(q, append([]session.Option{
		session.WithSamplesDir(SamplesDir(f.SamplesDir)),
		session.WithMerge(merge),
		session.WithLocator(loc),
		session.WithSymtabOptions(symOpts...),
		session.WithLogger(logger),
	}, opts...)...)
}
