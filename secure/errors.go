package secure

import (
	"errors"
	"fmt"
)

var ErrDecryption = errors.New("secure: decryption failed")

// DecryptionError reports a token that could not be opened. Reason is one of
// "encoding", "frame", "unknown key", "authentication", "utf8".
type DecryptionError struct {
	Context ContextName
	Reason  string
	Err     error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("secure: decrypt (%s): %s: %v", e.Context, e.Reason, e.Err)
	}
	return fmt.Sprintf("secure: decrypt (%s): %s", e.Context, e.Reason)
}

func (e *DecryptionError) Unwrap() error        { return e.Err }
func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }
