package errs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/AlfredDev/ftppool/errs"
)

func TestClassifyReplyCodes(t *testing.T) {
	tests := []struct {
		code int
		kind errs.Kind
		rec  bool
	}{
		{421, errs.KindConnectionClosed, true},
		{425, errs.KindDataConnectionError, true},
		{426, errs.KindTransferAborted, true},
		{430, errs.KindInvalidCredentials, false},
		{450, errs.KindFileNotFound, false},
		{451, errs.KindTransferError, true},
		{452, errs.KindInsufficientStorage, false},
		{552, errs.KindInsufficientStorage, false},
		{501, errs.KindInvalidConfiguration, false},
		{504, errs.KindInvalidConfiguration, false},
		{502, errs.KindCommandNotSupported, false},
		{503, errs.KindInvalidSequence, true},
		{530, errs.KindAuthenticationError, false},
		{532, errs.KindAuthenticationError, false},
		{550, errs.KindFileNotFound, false},
		{551, errs.KindInvalidPath, false},
		{553, errs.KindInvalidPath, false},
		{412, errs.KindServerError, true},
		{512, errs.KindServerError, false},
	}

	for _, tc := range tests {
		got := errs.Classify(errs.Signal{ReplyCode: tc.code})
		if got.Kind != tc.kind {
			t.Errorf("code %d: kind = %s, want %s", tc.code, got.Kind, tc.kind)
		}
		if got.Recoverable() != tc.rec {
			t.Errorf("code %d: recoverable = %v, want %v", tc.code, got.Recoverable(), tc.rec)
		}
		if got.ReplyCode != tc.code {
			t.Errorf("code %d: ReplyCode not attached, got %d", tc.code, got.ReplyCode)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.Kind
	}{
		{"deadline", context.DeadlineExceeded, errs.KindConnectionTimeout},
		{"refused", errors.New("dial tcp: connection refused"), errs.KindConnectionRefused},
		{"reset", errors.New("read: connection reset by peer"), errs.KindConnectionClosed},
		{"dns", errors.New("lookup ftp.example.com: no such host"), errs.KindConnectionError},
		{"unknown", errors.New("something weird"), errs.KindUnexpectedError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := errs.Classify(errs.Signal{Err: tc.err})
			if got.Kind != tc.kind {
				t.Errorf("got kind %s, want %s", got.Kind, tc.kind)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	sig := errs.Signal{ReplyCode: 530}
	a := errs.Classify(sig)
	b := errs.Classify(sig)
	if a.Kind != b.Kind || a.Recoverable() != b.Recoverable() {
		t.Fatal("Classify is not a pure function of its inputs")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	e1 := errs.New(errs.KindPoolClosed, "pool is shut down").WithConnectionID("c-1")
	e2 := errs.New(errs.KindPoolClosed, "different message")
	if !errors.Is(e1, e2) {
		t.Fatal("expected errors.Is to match on Kind regardless of message/fields")
	}

	e3 := errs.New(errs.KindPoolExhausted, "no idle connections")
	if errors.Is(e1, e3) {
		t.Fatal("expected errors.Is to not match across different kinds")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial failed")
	wrapped := errs.Wrap(errs.KindConnectionError, cause, "create failed")
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected Unwrap chain to expose the original cause")
	}
}
