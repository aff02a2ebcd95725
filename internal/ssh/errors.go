package ssh

import "fmt"

// ConnectError reports that no SSH transport could be established: the TCP dial
// or the key exchange failed.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Addr, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError reports that the handshake completed but the session is not authenticated.
type AuthError struct {
	User string
	Addr string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate %s@%s: %v", e.User, e.Addr, e.Err)
}
func (e *AuthError) Unwrap() error { return e.Err }

// ExecError is returned when a remote command exits with a nonzero status.
// Status is -1 when the server closed the channel without reporting one.
type ExecError struct {
	Status  int
	Command string
	Stderr  string
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("remote command failed (%d): %s", e.Status, e.Command)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

// TransferError wraps any failure while uploading a file.
type TransferError struct {
	Local  string
	Remote string
	Op     string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload %s -> %s: %s: %v", e.Local, e.Remote, e.Op, e.Err)
}
func (e *TransferError) Unwrap() error { return e.Err }
