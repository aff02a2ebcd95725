package ssh

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
)

// RemoteFileMode is applied to every uploaded file.
const RemoteFileMode os.FileMode = 0o644

// Upload copies a local file to remotePath via SFTP, creating or truncating it.
// A failed upload leaves the remote file in an undefined state.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	terr := func(op string, err error) error {
		return &TransferError{Local: localPath, Remote: remotePath, Op: op, Err: err}
	}
	sf, err := s.sftpClient()
	if err != nil {
		return terr("sftp client", err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return terr("open local", err)
	}
	defer src.Close()
	dst, err := sf.OpenFile(remotePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return terr("open remote", err)
	}
	defer dst.Close()
	if err := sf.Chmod(remotePath, RemoteFileMode); err != nil {
		return terr("chmod remote", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return terr("copy", err)
	}
	if err := dst.Close(); err != nil {
		return terr("close remote", err)
	}
	return nil
}

func (s *Session) sftpClient() (*sftp.Client, error) {
	if s.sftp != nil {
		return s.sftp, nil
	}
	if s.client == nil {
		return nil, fmt.Errorf("ssh: session closed")
	}
	sf, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, err
	}
	s.sftp = sf
	return sf, nil
}
