package captcha

const redacted = "captcha.secret{REDACTED}"

// secret wraps the Manager's HMAC key. Go has no borrow checker or
// guaranteed drop, so "zeroed on drop" becomes an explicit close step: the
// Manager owns the only copy, never exposes an accessor for it, and its
// String/GoString overrides keep a stray %v/%+v from ever printing the
// bytes.
type secret struct {
	bytes []byte
}

func newSecret(raw []byte) secret {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return secret{bytes: cp}
}

// close zeroes the backing array. Safe to call more than once.
func (s *secret) close() {
	for i := range s.bytes {
		s.bytes[i] = 0
	}
}

func (s secret) String() string   { return redacted }
func (s secret) GoString() string { return redacted }
