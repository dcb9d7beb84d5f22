package errors

type Kind string

const (
	KindNone        Kind = ""
	KindNotFound    Kind = "NotFound"
	KindConflict    Kind = "Conflict"
	KindTooEarly    Kind = "TooEarly"
	KindAuthFailure Kind = "AuthFailure"
	KindExhausted   Kind = "Exhausted"
	KindTransientIO Kind = "TransientIO"
	KindBadRequest  Kind = "BadRequest"
	KindInternal    Kind = "Internal"
)

// KindOf 将错误码归类到错误分类（NotFound/Conflict/TooEarly/...）。
func KindOf(err error) Kind {
	switch Code(err) {
	case 0:
		return KindNone
	case CodeNotFound:
		return KindNotFound
	case CodeAlreadyReported, CodeNotAcceptable:
		return KindConflict
	case CodeTooEarly:
		return KindTooEarly
	case CodeAuthFailed:
		return KindAuthFailure
	case CodeExhausted:
		return KindExhausted
	case CodeTransientIO:
		return KindTransientIO
	case CodeBadRequest:
		return KindBadRequest
	default:
		return KindInternal
	}
}

// HTTPStatus 返回错误对应的 HTTP 状态码；nil 返回 200。
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	c := Code(err)
	if c < 100 || c > 599 {
		return CodeInternal
	}
	return c
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool  { return KindOf(err) == KindConflict }
func IsTooEarly(err error) bool  { return KindOf(err) == KindTooEarly }
func IsExhausted(err error) bool { return KindOf(err) == KindExhausted }
