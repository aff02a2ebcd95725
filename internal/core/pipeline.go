package core

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/rdeploy/internal/archive"
)

// Fixed archive names; the remote unpack commands refer to them.
const (
	AppsArchive    = "apps.tar.gz"
	CfgHomeArchive = "cfgHome.tar.gz"
)

// Remote is the part of an SSH session the workflows use.
type Remote interface {
	ExecStreamed(ctx context.Context, command string) error
	Upload(ctx context.Context, localPath, remotePath string) error
}

// ArchiveFunc packs srcDir into outPath; an empty rootName flattens the tree.
type ArchiveFunc func(srcDir, outPath, rootName string) error

// Pipeline packs the local apps and config home trees, uploads them and
// unpacks them in place on the remote host.
type Pipeline struct {
	Remote  Remote
	Paths   PathsConfig
	Archive ArchiveFunc
	// ScratchDir receives the local archives. Empty means a fresh temp dir.
	ScratchDir string
	Logger     zerolog.Logger
}

type bundle struct {
	localDir  string
	remoteDir string
	name      string
}

// Run executes the steps in order and stops at the first failure, so a failed
// apps extraction means the config home is never extracted.
func (p *Pipeline) Run(ctx context.Context) error {
	pack := p.Archive
	if pack == nil {
		pack = archive.Directory
	}
	scratch, err := p.scratch()
	if err != nil {
		return err
	}
	bundles := []bundle{
		{localDir: p.Paths.LocalApps, remoteDir: p.Paths.RemoteApps, name: AppsArchive},
		{localDir: p.Paths.LocalCfgHome, remoteDir: p.Paths.RemoteCfgHome, name: CfgHomeArchive},
	}
	defer p.cleanup(scratch, bundles)

	for _, b := range bundles {
		local := filepath.Join(scratch, b.name)
		if err := pack(b.localDir, local, ""); err != nil {
			return fmt.Errorf("pack %s: %w", b.localDir, err)
		}
		p.Logger.Info().Str("archive", local).Str("src", b.localDir).Msg("packed")
	}
	for _, b := range bundles {
		local := filepath.Join(scratch, b.name)
		remote := RemoteArchivePath(b.remoteDir, b.name)
		if err := p.Remote.Upload(ctx, local, remote); err != nil {
			return fmt.Errorf("upload %s: %w", b.name, err)
		}
		p.Logger.Info().Str("remote", remote).Msg("uploaded")
	}
	for _, b := range bundles {
		cmd := ExtractCommand(b.remoteDir, b.name)
		if err := p.Remote.ExecStreamed(ctx, cmd); err != nil {
			return fmt.Errorf("extract %s: %w", b.name, err)
		}
		p.Logger.Info().Str("remote", RemoteArchivePath(b.remoteDir, b.name)).Msg("extracted and removed")
	}
	return nil
}

func (p *Pipeline) scratch() (string, error) {
	if p.ScratchDir != "" {
		if err := os.MkdirAll(p.ScratchDir, 0o755); err != nil {
			return "", fmt.Errorf("scratch dir: %w", err)
		}
		return p.ScratchDir, nil
	}
	dir, err := os.MkdirTemp("", "rdeploy-*")
	if err != nil {
		return "", fmt.Errorf("scratch dir: %w", err)
	}
	return dir, nil
}

// cleanup removes the local archives. Failures do not affect the deployment.
func (p *Pipeline) cleanup(scratch string, bundles []bundle) {
	for _, b := range bundles {
		err := os.Remove(filepath.Join(scratch, b.name))
		if os.IsNotExist(err) {
			err = nil
		}
		_ = Handle(p.Logger, BestEffort, "remove local archive", err)
	}
	if p.ScratchDir == "" {
		_ = Handle(p.Logger, BestEffort, "remove scratch dir", os.Remove(scratch))
	}
}

// RemoteArchivePath is the upload destination of an archive.
func RemoteArchivePath(remoteDir, name string) string {
	return path.Join(remoteDir, name)
}

// ExtractCommand unpacks name inside remoteDir and deletes it when tar succeeds.
func ExtractCommand(remoteDir, name string) string {
	return fmt.Sprintf("cd %s && tar -xzvf %s && rm -f %s", remoteDir, name, name)
}
