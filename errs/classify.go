package errs

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jlaffaye/textproto"
)

// Signal carries the raw inputs Classify needs: the underlying error, an
// optional FTP reply code (0 if none was parsed), and free-form context
// used only for the human message — never for classification itself,
// so Classify stays a pure function of (err, replyCode).
type Signal struct {
	Err       error
	ReplyCode int
	Operation string
	Path      string
}

// Classify maps a raw failure to a tagged *Error following the fixed
// table in spec §4.5. Reply-code rules are checked first (first match
// wins); transport-level signals are checked when no reply code applies.
//
// If sig.Err already wraps a *textproto.Error (the reply jlaffaye/ftp
// returns for every negative server response), its Code is extracted
// and used as the effective reply code when the caller did not already
// supply one — every real call site hits this path, since none of them
// parse the reply code by hand before building a Signal.
//
// If sig.Err is already a classified *Error (e.g. a recoverable error
// re-submitted through recovery.Executor's retry loop), Classify
// returns it unchanged rather than reclassifying a value that carries
// no reply code or raw transport signal of its own — otherwise a
// second pass would misclassify it as KindUnexpectedError.
func Classify(sig Signal) *Error {
	var already *Error
	if errors.As(sig.Err, &already) {
		return finish(already, Signal{ReplyCode: sig.ReplyCode, Path: sig.Path})
	}

	code := sig.ReplyCode
	if code == 0 {
		code = replyCodeOf(sig.Err)
	}

	if e := classifyReplyCode(code); e != nil {
		return finish(e, Signal{ReplyCode: code, Path: sig.Path})
	}
	if e := classifyTransport(sig.Err); e != nil {
		return finish(e, Signal{ReplyCode: code, Path: sig.Path})
	}
	return finish(New(KindUnexpectedError, messageFor(sig.Err)), Signal{ReplyCode: code, Path: sig.Path})
}

// replyCodeOf extracts the numeric reply code from a *textproto.Error,
// the error type github.com/jlaffaye/ftp returns for every negative FTP
// reply. Returns 0 if err carries no such code.
func replyCodeOf(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	return 0
}

func finish(e *Error, sig Signal) *Error {
	if e.ReplyCode == 0 && sig.ReplyCode != 0 {
		e = e.WithReplyCode(sig.ReplyCode)
	}
	if e.Path == "" && sig.Path != "" {
		e = e.WithPath(sig.Path)
	}
	return e
}

func messageFor(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}

// classifyReplyCode implements the reply-code table in spec §4.5.
func classifyReplyCode(code int) *Error {
	switch code {
	case 0:
		return nil
	case 421:
		return New(KindConnectionClosed, "server closed the control connection")
	case 425:
		return New(KindDataConnectionError, "could not open data connection")
	case 426:
		return New(KindTransferAborted, "connection closed; transfer aborted")
	case 430:
		return New(KindInvalidCredentials, "invalid username or password")
	case 450:
		return New(KindFileNotFound, "requested file action not taken")
	case 451:
		return New(KindTransferError, "requested action aborted: local error in processing")
	case 452, 552:
		return New(KindInsufficientStorage, "insufficient storage space")
	case 501, 504:
		return New(KindInvalidConfiguration, "syntax error in parameters or command not implemented for parameter")
	case 502:
		return New(KindCommandNotSupported, "command not implemented")
	case 503:
		return New(KindInvalidSequence, "bad sequence of commands")
	case 530, 532:
		return New(KindAuthenticationError, "not logged in")
	case 550:
		return New(KindFileNotFound, "file unavailable")
	case 551, 553:
		return New(KindInvalidPath, "requested action aborted: invalid path")
	}
	switch {
	case code >= 400 && code < 500:
		return New(KindServerError, "transient server error")
	case code >= 500 && code < 600:
		e := New(KindServerError, "permanent server error")
		e.recoverable = false
		return e
	}
	return nil
}

// classifyTransport implements the transport-level rows of the table.
func classifyTransport(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return New(KindConnectionClosed, "connection closed")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindConnectionTimeout, "operation timed out")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(KindConnectionTimeout, "operation timed out")
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return New(KindConnectionRefused, "connection refused")
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return New(KindConnectionClosed, "connection reset by peer")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return New(KindConnectionError, "dns lookup failed")
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "refused"):
		return New(KindConnectionRefused, "connection refused")
	case strings.Contains(msg, "reset by peer"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "use of closed network connection"):
		return New(KindConnectionClosed, "connection reset or closed")
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return New(KindConnectionTimeout, "operation timed out")
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "lookup"):
		return New(KindConnectionError, "dns lookup failed")
	case strings.Contains(msg, "not logged in"), strings.Contains(msg, "login incorrect"):
		return New(KindAuthenticationError, "authentication rejected")
	}

	return nil
}
