package builtin

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ctfoj/internal/challenge"
	"ctfoj/internal/common/storage"
	appErr "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	folderTitleFile       = "title.txt"
	folderFlagFile        = "flag.txt"
	folderDescriptionFile = "description.html"
	folderArchiveSuffix   = ".tar.zst"
	folderETagFile        = ".etag"
	maxArchiveEntrySize   = 16 << 20
)

const missingTeamDescription = `<div class="alert alert-danger">No challenge created for your group. Please report a bug!</div>`

// FromFolder is defined by files in a folder:
//
//	title.txt               the challenge title
//	<team>/description.html the description shown to one team
//	<team>/flag.txt         the flag of one team
//
// With object storage configured, the folder is fetched as <args>.tar.zst
// and unpacked into the cache directory. An unpacked folder is reused while
// the archive's ETag is unchanged.
type FromFolder struct {
	challenge.Base
	source  string
	dir     string
	storage storage.ObjectStorage
	teams   TeamResolver

	mu    sync.RWMutex
	title string
}

func newFromFolder(env challenge.Env, opts Options) (challenge.Definition, error) {
	args := strings.TrimSpace(env.Args)
	source := strings.Trim(args, "/")
	if source == "" {
		return nil, errors.New("FromFolder requires a folder argument")
	}
	f := &FromFolder{
		Base:    challenge.NewBase(env),
		source:  source,
		storage: opts.Storage,
		teams:   opts.Teams,
	}
	if f.storage != nil {
		f.dir = filepath.Join(opts.CacheDir, filepath.Clean("/"+source))
	} else {
		abs, err := filepath.Abs(args)
		if err != nil {
			return nil, err
		}
		f.dir = abs
	}
	return f, nil
}

func (f *FromFolder) Title() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.title == "" {
		return f.source
	}
	return f.title
}

// Start fetches the folder if needed, reads the title and issues one flag
// per team folder.
func (f *FromFolder) Start(ctx context.Context) error {
	if f.storage != nil {
		if err := f.fetch(ctx); err != nil {
			return err
		}
	}
	title, err := os.ReadFile(filepath.Join(f.dir, folderTitleFile))
	if err != nil {
		return fmt.Errorf("read title: %w", err)
	}
	f.mu.Lock()
	f.title = strings.TrimSpace(string(title))
	f.mu.Unlock()

	flagFiles, err := filepath.Glob(filepath.Join(f.dir, "*", folderFlagFile))
	if err != nil {
		return err
	}
	flags := f.Runtime().Flags
	if flags == nil {
		return errors.New("flag issuer is nil")
	}
	for _, path := range flagFiles {
		token, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read flag: %w", err)
		}
		if _, err := flags.Issue(ctx, f.ID(), 1, strings.TrimSpace(string(token))); err != nil {
			return err
		}
	}
	logger.Info(ctx, "folder challenge flags created", zap.String("cid", f.ID()), zap.Int("count", len(flagFiles)))
	return nil
}

func (f *FromFolder) Description(ctx context.Context, user string, solved bool) (string, error) {
	team := user
	if f.teams != nil {
		tid, ok, err := f.teams.TeamOf(ctx, user)
		if err != nil {
			return "", err
		}
		if ok {
			team = tid
		}
	}
	if team == "" || team != filepath.Base(team) || team == ".." {
		return missingTeamDescription, nil
	}
	desc, err := os.ReadFile(filepath.Join(f.dir, team, folderDescriptionFile))
	if err != nil {
		return missingTeamDescription, nil
	}
	return string(desc), nil
}

func (f *FromFolder) fetch(ctx context.Context) error {
	key := f.source + folderArchiveSuffix
	stat, err := f.storage.Stat(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "stat challenge folder failed")
	}
	marker := filepath.Join(f.dir, folderETagFile)
	if cached, err := os.ReadFile(marker); err == nil && stat.ETag != "" && string(cached) == stat.ETag {
		logger.Debug(ctx, "challenge folder is up to date", zap.String("key", key), zap.String("etag", stat.ETag))
		return nil
	}

	reader, err := f.storage.Open(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "download challenge folder failed")
	}
	defer reader.Close()

	if err := os.RemoveAll(f.dir); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "cleanup challenge folder failed")
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create challenge folder failed")
	}
	if err := extractFolder(reader, f.dir); err != nil {
		return err
	}
	if stat.ETag != "" {
		if err := os.WriteFile(marker, []byte(stat.ETag), 0644); err != nil {
			logger.Warn(ctx, "write challenge folder etag failed", zap.String("key", key), zap.Error(err))
		}
	}
	logger.Info(ctx, "challenge folder unpacked", zap.String("key", key), zap.Int64("size", stat.SizeBytes))
	return nil
}

// extractFolder unpacks a zstd compressed tar stream into dstDir. Entries
// escaping dstDir are rejected; links and devices are skipped.
func extractFolder(src io.Reader, dstDir string) error {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create zstd reader failed")
	}
	defer zr.Close()

	root := filepath.Clean(dstDir) + string(filepath.Separator)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "read tar entry failed")
		}
		name := filepath.Clean(hdr.Name)
		if hdr.Name == "" || name == "." {
			continue
		}
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return appErr.New(appErr.CacheError).WithMessage("invalid tar entry path")
		}
		target := filepath.Join(dstDir, name)
		if !strings.HasPrefix(target, root) {
			return appErr.New(appErr.CacheError).WithMessage("tar entry escape detected")
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create dir failed")
			}
		case tar.TypeReg:
			if hdr.Size > maxArchiveEntrySize {
				return appErr.Newf(appErr.CacheError, "tar entry %s too large", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create parent dir failed")
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode).Perm())
			if err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create file failed")
			}
			if _, err := io.Copy(file, io.LimitReader(tr, maxArchiveEntrySize)); err != nil {
				_ = file.Close()
				return appErr.Wrapf(err, appErr.CacheError, "write file failed")
			}
			_ = file.Close()
		}
	}
}
