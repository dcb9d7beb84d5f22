package errors

import (
	"errors"
	"testing"
)

// TestCodeAndWrap 验证 Wrap/Code/errors.Is 的基础行为。
func TestCodeAndWrap(t *testing.T) {
	base := errors.New("x")
	e := Wrap(CodeNotAcceptable, "conflict", base)
	if Code(e) != CodeNotAcceptable {
		t.Fatalf("code=%d", Code(e))
	}
	if !errors.Is(e, base) {
		t.Fatalf("unwrap failed")
	}
}

// TestWithMessageAndCodeFallback 验证 WithMessage 及默认错误码回退。
func TestWithMessageAndCodeFallback(t *testing.T) {
	base := errors.New("x")
	w := WithMessage(base, "ctx")
	if w == nil {
		t.Fatalf("expected error")
	}
	if Code(base) != CodeInternal {
		t.Fatalf("expected default code")
	}
	if Code(nil) != 0 {
		t.Fatalf("expected code 0 for nil")
	}
	if WithMessage(nil, "ctx") != nil {
		t.Fatalf("expected nil")
	}
}

// TestNotFoundSentinels 验证中继/无人机不存在错误可以被区分。
func TestNotFoundSentinels(t *testing.T) {
	r := WithMessage(RelayNotFound("relay_0001"), "heartbeat")
	d := DroneNotFound("relay_0001", "drone_001")
	if !IsNotFound(r) || !IsNotFound(d) {
		t.Fatalf("expected not found kind")
	}
	if !errors.Is(r, ErrRelayNotFound) || errors.Is(r, ErrDroneNotFound) {
		t.Fatalf("relay sentinel mismatch")
	}
	if !errors.Is(d, ErrDroneNotFound) || errors.Is(d, ErrRelayNotFound) {
		t.Fatalf("drone sentinel mismatch")
	}
}

// TestKindAndHTTPStatus 验证错误码到错误分类与 HTTP 状态码的映射。
func TestKindAndHTTPStatus(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		status int
	}{
		{nil, KindNone, 200},
		{New(CodeAlreadyReported, "pending"), KindConflict, 208},
		{New(CodeNotAcceptable, "airborne"), KindConflict, 406},
		{New(CodeTooEarly, "grounded"), KindTooEarly, 425},
		{New(CodeAuthFailed, "bad password"), KindAuthFailure, 401},
		{New(CodeExhausted, "no port"), KindExhausted, 503},
		{New(CodeTransientIO, "send"), KindTransientIO, 502},
		{New(CodeBadRequest, "bad"), KindBadRequest, 400},
		{errors.New("plain"), KindInternal, 500},
		{New(7, "odd"), KindInternal, 500},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.kind {
			t.Fatalf("kind(%v)=%s want %s", c.err, got, c.kind)
		}
		if got := HTTPStatus(c.err); got != c.status {
			t.Fatalf("status(%v)=%d want %d", c.err, got, c.status)
		}
	}
	if !IsConflict(New(CodeAlreadyReported, "x")) || !IsTooEarly(New(CodeTooEarly, "x")) || !IsExhausted(New(CodeExhausted, "x")) {
		t.Fatalf("helper mismatch")
	}
}
